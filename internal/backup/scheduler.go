package backup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/logging"
	"erp-backend/internal/metrics"
	"erp-backend/internal/models"
	"erp-backend/internal/timeutil"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ObjectStore receives backup payloads.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// DocumentSource exports a consistent copy of every collection.
type DocumentSource interface {
	Export(ctx context.Context) (*models.Document, error)
}

// Result describes one finished backup run.
type Result struct {
	Key     string    `json:"key,omitempty"`
	Bytes   int       `json:"bytes"`
	Skipped bool      `json:"skipped"`
	At      time.Time `json:"at"`
}

// Scheduler exports the document to object storage on an interval, but only
// after a commit marked it dirty. Run forces a backup regardless.
type Scheduler struct {
	source   DocumentSource
	objects  ObjectStore
	interval time.Duration
	now      timeutil.Clock
	log      zerolog.Logger

	dirty atomic.Bool
	mu    sync.Mutex
	last  Result

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(source DocumentSource, objects ObjectStore, interval time.Duration, clock timeutil.Clock) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	s := &Scheduler{
		source:   source,
		objects:  objects,
		interval: interval,
		now:      clock,
		log:      logging.For("backup"),
		stopChan: make(chan struct{}),
	}
	// Nothing has been backed up yet in this process.
	s.dirty.Store(true)
	return s
}

// MarkDirty is registered as a store commit hook.
func (s *Scheduler) MarkDirty() { s.dirty.Store(true) }

// Pending reports whether changes are waiting for the next backup.
func (s *Scheduler) Pending() bool { return s.dirty.Load() }

// Last returns the most recent successful run.
func (s *Scheduler) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run exports and uploads the document now.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty.Store(false)
	doc, err := s.source.Export(ctx)
	if err != nil {
		s.dirty.Store(true)
		metrics.BackupsTotal.WithLabelValues("failure").Inc()
		return Result{}, err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		s.dirty.Store(true)
		metrics.BackupsTotal.WithLabelValues("failure").Inc()
		return Result{}, apperr.Internal(err, "Failed to encode backup")
	}

	at := s.now()
	key := fmt.Sprintf("documents/erp_%s.json", at.In(timeutil.Loc).Format(timeutil.FileLayout))
	if err := s.objects.Put(ctx, key, payload, "application/json"); err != nil {
		s.dirty.Store(true)
		metrics.BackupsTotal.WithLabelValues("failure").Inc()
		return Result{}, apperr.Internal(err, "Failed to upload backup")
	}

	metrics.BackupsTotal.WithLabelValues("success").Inc()
	s.last = Result{Key: key, Bytes: len(payload), At: at}
	s.log.Info().Str("key", key).Int("bytes", len(payload)).Msg("backup uploaded")
	return s.last, nil
}

// RunIfPending backs up only when a commit happened since the last run.
func (s *Scheduler) RunIfPending(ctx context.Context) (Result, error) {
	if !s.dirty.Load() {
		metrics.BackupsTotal.WithLabelValues("skipped").Inc()
		return Result{Skipped: true, At: s.now()}, nil
	}
	return s.Run(ctx)
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.RunIfPending(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduled backup failed")
	}
}

func (s *Scheduler) Start() {
	s.log.Info().Dur("interval", s.interval).Msg("starting backup scheduler")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopChan:
				s.log.Info().Msg("stopping backup scheduler")
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
