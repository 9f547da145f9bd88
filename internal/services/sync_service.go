package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const snapshotsKept = 20

// SnapshotStore is where the remote copies of the document live.
type SnapshotStore interface {
	Save(ctx context.Context, payload []byte, checksum, source string) (int64, error)
	Latest(ctx context.Context) (*repositories.Snapshot, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

// SyncService mirrors the local store to the remote store. On startup the
// newest remote snapshot wins; afterwards local commits are pushed in the
// background.
type SyncService struct {
	Documents *repositories.DocumentRepository
	Snapshots SnapshotStore
	source    string
	interval  time.Duration
	log       zerolog.Logger

	dirty        atomic.Bool
	mu           sync.Mutex
	lastChecksum string

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewSyncService(docs *repositories.DocumentRepository, snapshots SnapshotStore, source string, interval time.Duration) *SyncService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SyncService{
		Documents: docs,
		Snapshots: snapshots,
		source:    source,
		interval:  interval,
		log:       logging.For("sync"),
		stopChan:  make(chan struct{}),
	}
}

// MarkDirty flags that local state changed. It is registered as a store
// commit hook.
func (s *SyncService) MarkDirty() { s.dirty.Store(true) }

// Restore imports the newest remote snapshot. It reports false when the
// remote store holds none.
func (s *SyncService) Restore(ctx context.Context) (bool, error) {
	snap, err := s.Snapshots.Latest(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}

	var doc models.Document
	if err := json.Unmarshal(snap.Payload, &doc); err != nil {
		return false, apperr.Internal(err, "Corrupt remote snapshot")
	}
	if err := s.Documents.Import(ctx, &doc); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.lastChecksum = snap.Checksum
	s.mu.Unlock()
	s.dirty.Store(false)

	s.log.Info().Int64("snapshot_id", snap.ID).Time("created_at", snap.CreatedAt).Msg("restored from remote store")
	return true, nil
}

// Push exports the document and stores it remotely unless it is identical
// to the last pushed copy.
func (s *SyncService) Push(ctx context.Context) error {
	doc, err := s.Documents.Export(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return apperr.Internal(err, "Failed to encode document")
	}
	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	if checksum == s.lastChecksum {
		return nil
	}

	id, err := s.Snapshots.Save(ctx, payload, checksum, s.source)
	if err != nil {
		return apperr.Internal(err, "Failed to save snapshot")
	}
	s.lastChecksum = checksum

	if pruned, err := s.Snapshots.Prune(ctx, snapshotsKept); err != nil {
		s.log.Warn().Err(err).Msg("snapshot prune failed")
	} else if pruned > 0 {
		s.log.Debug().Int64("pruned", pruned).Msg("old snapshots pruned")
	}
	s.log.Debug().Int64("snapshot_id", id).Int("bytes", len(payload)).Msg("snapshot pushed")
	return nil
}

func (s *SyncService) flush() {
	if !s.dirty.Swap(false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Push(ctx); err != nil {
		s.dirty.Store(true)
		s.log.Error().Err(err).Msg("snapshot push failed")
	}
}

func (s *SyncService) Start() {
	s.log.Info().Dur("interval", s.interval).Msg("starting remote sync")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.flush()
			case <-s.stopChan:
				s.flush()
				s.log.Info().Msg("stopping remote sync")
				return
			}
		}
	}()
}

func (s *SyncService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
