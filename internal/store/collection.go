package store

import (
	"fmt"
	"sort"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/models"

	"github.com/goccy/go-json"
)

// Record is implemented by every stored entity through its embedded models.Meta.
type Record interface {
	RecordID() string
	Metadata() *models.Meta
}

// recordPtr constrains P to be *T and a Record, so collections can allocate
// fresh values while decoding.
type recordPtr[T any] interface {
	*T
	Record
}

// Collection is a typed view over the keys of one entity kind.
type Collection[T any, P recordPtr[T]] struct {
	name  string
	label string
}

// NewCollection returns the collection stored under "<name>:" keys. label is
// used in error messages ("project not found").
func NewCollection[T any, P recordPtr[T]](name, label string) *Collection[T, P] {
	return &Collection[T, P]{name: name, label: label}
}

func (c *Collection[T, P]) Name() string { return c.name }

func (c *Collection[T, P]) key(id string) string { return c.name + ":" + id }

func (c *Collection[T, P]) prefix() string { return c.name + ":" }

// NewID returns the next "{prefix}_{n:03d}" id, skipping any id already
// present (for example one that arrived through an import).
func (c *Collection[T, P]) NewID(tx *Tx, prefix string) (string, error) {
	for {
		n, err := tx.Next("id:" + c.name + ":" + prefix)
		if err != nil {
			return "", err
		}
		id := fmt.Sprintf("%s_%03d", prefix, n)
		exists, err := tx.Exists(c.key(id))
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
}

// Get loads the record with id, tombstoned or not.
func (c *Collection[T, P]) Get(tx *Tx, id string) (P, error) {
	var v T
	found, err := tx.GetJSON(c.key(id), &v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound("%s not found", c.label)
	}
	return P(&v), nil
}

// Insert stores a new record. The record's metadata is initialised here.
func (c *Collection[T, P]) Insert(tx *Tx, rec P, now time.Time) error {
	key := c.key(rec.RecordID())
	exists, err := tx.Exists(key)
	if err != nil {
		return err
	}
	if exists {
		return apperr.Conflict("%s %s already exists", c.label, rec.RecordID())
	}

	seq, err := tx.Next("order:" + c.name)
	if err != nil {
		return err
	}
	meta := rec.Metadata()
	meta.Seq = seq
	meta.Version = 1
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	return tx.PutJSON(key, rec)
}

// Update loads id, applies fn and writes the result back with a bumped
// version. A non-zero expectedVersion must match the stored version or the
// update fails with Conflict.
func (c *Collection[T, P]) Update(tx *Tx, id string, expectedVersion int64, now time.Time, fn func(P) error) (P, error) {
	rec, err := c.Get(tx, id)
	if err != nil {
		return nil, err
	}
	meta := rec.Metadata()
	if expectedVersion > 0 && meta.Version != expectedVersion {
		return nil, apperr.Conflict("%s was modified by someone else (version %d, expected %d)", c.label, meta.Version, expectedVersion)
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	meta.Version++
	meta.Touch(now)
	if err := tx.PutJSON(c.key(id), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Put writes rec as is. Used by imports, which carry their own metadata.
func (c *Collection[T, P]) Put(tx *Tx, rec P) error {
	return tx.PutJSON(c.key(rec.RecordID()), rec)
}

// List returns the records for which keep returns true (all when keep is
// nil), in insertion order.
func (c *Collection[T, P]) List(tx *Tx, keep func(P) bool) ([]P, error) {
	out := make([]P, 0)
	err := tx.Scan(c.prefix(), func(key string, val []byte) error {
		var v T
		if err := json.Unmarshal(val, &v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		rec := P(&v)
		if keep == nil || keep(rec) {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata().Seq < out[j].Metadata().Seq
	})
	return out, nil
}

// Live is a List filter that drops tombstoned records.
func Live[P Record](rec P) bool {
	return rec.Metadata().DeletedAt == nil
}

// Clear removes every record of the collection.
func (c *Collection[T, P]) Clear(tx *Tx) error {
	return tx.DeletePrefix(c.prefix())
}
