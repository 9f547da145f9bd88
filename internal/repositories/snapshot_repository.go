package repositories

import (
	"context"
	"errors"
	"time"

	"erp-backend/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Snapshot is one copy of the exported document held by the remote store.
type Snapshot struct {
	ID        int64
	Payload   []byte
	Checksum  string
	Source    string
	CreatedAt time.Time
}

// SnapshotRepository persists document snapshots in Postgres.
type SnapshotRepository struct {
	DB *pgxpool.Pool
}

func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{DB: db}
}

func (r *SnapshotRepository) Save(ctx context.Context, payload []byte, checksum, source string) (int64, error) {
	var id int64
	err := r.DB.QueryRow(ctx,
		`INSERT INTO erp_snapshots(payload, checksum, source) VALUES($1, $2, $3) RETURNING id`,
		payload, checksum, source,
	).Scan(&id)
	return id, err
}

// Latest returns the newest snapshot or NotFound when the table is empty.
func (r *SnapshotRepository) Latest(ctx context.Context) (*Snapshot, error) {
	var s Snapshot
	err := r.DB.QueryRow(ctx,
		`SELECT id, payload, checksum, source, created_at FROM erp_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&s.ID, &s.Payload, &s.Checksum, &s.Source, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no snapshot stored")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Prune keeps the newest keep snapshots and deletes the rest.
func (r *SnapshotRepository) Prune(ctx context.Context, keep int) (int64, error) {
	tag, err := r.DB.Exec(ctx,
		`DELETE FROM erp_snapshots WHERE id NOT IN (SELECT id FROM erp_snapshots ORDER BY id DESC LIMIT $1)`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
