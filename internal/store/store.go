// Package store is the embedded transactional key-value store behind every
// repository. Records are JSON values under "<collection>:<id>" keys in
// badger; every mutation runs inside one serializable transaction and is
// retried when badger reports a conflict.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/logging"
	"erp-backend/internal/metrics"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	defaultMaxRetries = 10
	sequenceBandwidth = 100
	sequencePrefix    = "_seq:"
	guardPrefix       = "_guard:"
	guardTTL          = time.Minute
)

type Store struct {
	db         *badger.DB
	log        zerolog.Logger
	maxRetries int

	seqMu sync.Mutex
	seqs  map[string]*badger.Sequence

	hookMu sync.RWMutex
	hooks  []func()
}

// Open opens (or creates) a persistent store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{logging.For("badger")})
	return open(opts)
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{
		db:         db,
		log:        logging.For("store"),
		maxRetries: defaultMaxRetries,
		seqs:       make(map[string]*badger.Sequence),
	}, nil
}

// Close releases sequence leases and closes the database.
func (s *Store) Close() error {
	s.seqMu.Lock()
	for name, seq := range s.seqs {
		if err := seq.Release(); err != nil {
			s.log.Warn().Err(err).Str("sequence", name).Msg("release sequence")
		}
	}
	s.seqs = map[string]*badger.Sequence{}
	s.seqMu.Unlock()
	return s.db.Close()
}

// Ping fails when the database has been closed.
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("store closed")
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// OnCommit registers fn to run after every successful write transaction.
func (s *Store) OnCommit(fn func()) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hookMu.Unlock()
}

func (s *Store) committed() {
	s.hookMu.RLock()
	defer s.hookMu.RUnlock()
	for _, fn := range s.hooks {
		fn()
	}
}

// Update runs fn in a read-write transaction. If another transaction
// committed a write to any key fn read, the commit fails with
// badger.ErrConflict and fn is run again against fresh state. fn must
// therefore be free of side effects outside the transaction.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			return fn(&Tx{txn: txn, store: s})
		})
		if errors.Is(err, badger.ErrConflict) {
			metrics.StoreTxnConflicts.Inc()
			s.log.Debug().Int("attempt", attempt+1).Msg("transaction conflict, retrying")
			continue
		}
		if err != nil {
			return wrapErr(err)
		}

		s.committed()
		return nil
	}
	return apperr.Conflict("too many concurrent modifications, please retry")
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		return fn(&Tx{txn: txn, store: s, readOnly: true})
	})
	return wrapErr(err)
}

// Next returns the next value of the named monotonic counter, starting at 1.
// Values are never handed out twice, even across restarts; a restart may
// skip the unused part of the current lease.
func (s *Store) Next(name string) (uint64, error) {
	s.seqMu.Lock()
	seq, ok := s.seqs[name]
	if !ok {
		var err error
		seq, err = s.db.GetSequence([]byte(sequencePrefix+name), sequenceBandwidth)
		if err != nil {
			s.seqMu.Unlock()
			return 0, fmt.Errorf("sequence %s: %w", name, err)
		}
		s.seqs[name] = seq
	}
	s.seqMu.Unlock()

	n, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("sequence %s: %w", name, err)
	}
	// badger sequences start at zero
	return n + 1, nil
}

// wrapErr keeps typed errors from callbacks and turns storage failures into
// Internal errors.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Internal(err, "Storage error")
}

// Tx is a store transaction handed to Update/View callbacks.
type Tx struct {
	txn      *badger.Txn
	store    *Store
	readOnly bool
}

// Next exposes the store's counters inside a transaction.
func (tx *Tx) Next(name string) (uint64, error) {
	return tx.store.Next(name)
}

// GetJSON decodes the value at key into v. found is false when key is absent.
func (tx *Tx) GetJSON(key string, v any) (found bool, err error) {
	item, err := tx.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON stores v at key.
func (tx *Tx) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.txn.Set([]byte(key), data)
}

// PutJSONWithTTL stores v at key; badger drops the key once ttl has passed.
func (tx *Tx) PutJSONWithTTL(key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(ttl))
}

// Exists reports whether key is present.
func (tx *Tx) Exists(key string) (bool, error) {
	_, err := tx.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Guard point-reads and rewrites a marker for name. Two read-write
// transactions guarding the same name cannot both commit: the later one
// fails with a conflict and Update runs it again against the committed
// state. Use it before a scan-based uniqueness check, since badger does not
// detect keys another transaction inserts under a scanned prefix.
func (tx *Tx) Guard(name string) error {
	if tx.readOnly {
		return errors.New("guard in read-only transaction")
	}
	key := []byte(guardPrefix + name)
	if _, err := tx.txn.Get(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("guard %s: %w", name, err)
	}
	return tx.txn.SetEntry(badger.NewEntry(key, nil).WithTTL(guardTTL))
}

// Delete removes key. Deleting a missing key is not an error.
func (tx *Tx) Delete(key string) error {
	return tx.txn.Delete([]byte(key))
}

// Scan calls fn with the raw value of every key under prefix, in key order.
func (tx *Tx) Scan(prefix string, fn func(key string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.Prefix = []byte(prefix)
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		key := string(item.KeyCopy(nil))
		err := item.Value(func(val []byte) error {
			return fn(key, val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DeletePrefix removes every key under prefix.
func (tx *Tx) DeletePrefix(prefix string) error {
	var keys []string
	err := tx.Scan(prefix, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := tx.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.log.Error().Msgf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn().Msgf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.log.Debug().Msgf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.log.Trace().Msgf(f, v...) }
