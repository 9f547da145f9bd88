package repositories

import (
	"context"

	"erp-backend/internal/models"
	"erp-backend/internal/store"
)

const dailyOTPKey = "otp:daily"

// OTPRepository stores the single daily attendance code.
type OTPRepository struct {
	store *store.Store
}

func NewOTPRepository(s *store.Store) *OTPRepository {
	return &OTPRepository{store: s}
}

// Get returns the stored code; ok is false when none was ever generated.
func (r *OTPRepository) Get(ctx context.Context) (otp models.DailyOTP, ok bool, err error) {
	err = r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		ok, err = tx.GetJSON(dailyOTPKey, &otp)
		return err
	})
	return otp, ok, err
}

// Rotate stores a fresh code for today. generate receives the previous code
// so it can avoid repeating it.
func (r *OTPRepository) Rotate(ctx context.Context, today string, generate func(previous string) (string, error)) (models.DailyOTP, error) {
	var out models.DailyOTP
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var prev models.DailyOTP
		if _, err := tx.GetJSON(dailyOTPKey, &prev); err != nil {
			return err
		}
		code, err := generate(prev.Code)
		if err != nil {
			return err
		}
		out = models.DailyOTP{Code: code, Date: today}
		return tx.PutJSON(dailyOTPKey, out)
	})
	return out, err
}

// Current returns today's code, rotating it first when the stored code
// belongs to another day. The read and the rotation share one transaction,
// so concurrent callers on a new day agree on a single code.
func (r *OTPRepository) Current(ctx context.Context, today string, generate func(previous string) (string, error)) (models.DailyOTP, error) {
	var out models.DailyOTP
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var cur models.DailyOTP
		found, err := tx.GetJSON(dailyOTPKey, &cur)
		if err != nil {
			return err
		}
		if found && cur.Date == today && cur.Code != "" {
			out = cur
			return nil
		}
		code, err := generate(cur.Code)
		if err != nil {
			return err
		}
		out = models.DailyOTP{Code: code, Date: today}
		return tx.PutJSON(dailyOTPKey, out)
	})
	return out, err
}

func (r *OTPRepository) Put(ctx context.Context, otp models.DailyOTP) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		return tx.PutJSON(dailyOTPKey, otp)
	})
}
