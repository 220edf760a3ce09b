package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"auctionsearch/internal/domain"
)

// ReplicaStore is the write side of the replica used by synchronization.
type ReplicaStore interface {
	EnsureTextIndex(ctx context.Context) error
	LatestUpdatedAt(ctx context.Context) (*time.Time, error)
	UpsertMany(ctx context.Context, items []domain.Item) (int, error)
}

type ItemFetcher interface {
	FetchSince(ctx context.Context, watermark *time.Time) ([]domain.Item, error)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type SyncStatus struct {
	Runs        int        `json:"runs"`
	Running     bool       `json:"running"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	LastApplied int        `json:"lastApplied"`
	LastError   string     `json:"lastError,omitempty"`
	Watermark   *time.Time `json:"watermark,omitempty"`
}

// SyncService pulls changes from the system of record into the replica.
// Runs are serialized; triggers that arrive during a run coalesce into one
// follow-up run.
type SyncService struct {
	Store    ReplicaStore
	Upstream ItemFetcher
	Cache    CacheInvalidator // optional

	OnStart  bool
	Interval time.Duration // 0 disables periodic runs

	trigger chan struct{}
	runMu   sync.Mutex

	mu     sync.Mutex
	status SyncStatus
}

func NewSyncService(store ReplicaStore, upstream ItemFetcher) *SyncService {
	return &SyncService{
		Store:    store,
		Upstream: upstream,
		OnStart:  true,
		trigger:  make(chan struct{}, 1),
	}
}

// Run performs one synchronization cycle and returns the number of rows
// applied. On error the replica is left as it was.
func (s *SyncService) Run(ctx context.Context) (int, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	logger := log.With().Str("sync_run", uuid.NewString()).Logger()
	s.setRunning(true)

	applied, watermark, err := s.run(ctx)

	now := time.Now().UTC()
	s.mu.Lock()
	s.status.Runs++
	s.status.Running = false
	s.status.LastRun = &now
	s.status.LastApplied = applied
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	if watermark != nil {
		s.status.Watermark = watermark
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).Msg("replica sync failed")
		return 0, err
	}
	logger.Info().Int("applied", applied).Msg("replica sync completed")
	return applied, nil
}

func (s *SyncService) run(ctx context.Context) (int, *time.Time, error) {
	if err := s.Store.EnsureTextIndex(ctx); err != nil {
		return 0, nil, fmt.Errorf("ensure text index: %w", err)
	}

	watermark, err := s.Store.LatestUpdatedAt(ctx)
	if err != nil {
		return 0, nil, err
	}
	ev := log.Debug()
	if watermark != nil {
		ev = ev.Time("watermark", *watermark)
	}
	ev.Msg("fetching items from upstream")

	items, err := s.Upstream.FetchSince(ctx, watermark)
	if err != nil {
		return 0, watermark, fmt.Errorf("fetch items: %w", err)
	}
	log.Info().Int("count", len(items)).Msg("items retrieved from upstream")
	if len(items) == 0 {
		return 0, watermark, nil
	}

	applied, err := s.Store.UpsertMany(ctx, items)
	if err != nil {
		return 0, watermark, fmt.Errorf("apply batch: %w", err)
	}

	if s.Cache != nil && applied > 0 {
		if err := s.Cache.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("search cache invalidation failed")
		}
	}

	latest, err := s.Store.LatestUpdatedAt(ctx)
	if err != nil {
		return applied, watermark, nil
	}
	return applied, latest, nil
}

// Trigger requests a run without blocking.
func (s *SyncService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Loop runs until ctx ends: once at start when OnStart is set, then on every
// trigger and interval tick. Failures are logged and never end the loop.
func (s *SyncService) Loop(ctx context.Context) error {
	log.Info().Dur("interval", s.Interval).Bool("on_start", s.OnStart).Msg("starting replica syncer")

	if s.OnStart {
		_, _ = s.Run(ctx)
	}

	var tick <-chan time.Time
	if s.Interval > 0 {
		t := time.NewTicker(s.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("replica syncer stopped")
			return nil
		case <-s.trigger:
			_, _ = s.Run(ctx)
		case <-tick:
			_, _ = s.Run(ctx)
		}
	}
}

// Start runs Loop in the background.
func (s *SyncService) Start(ctx context.Context) {
	go func() { _ = s.Loop(ctx) }()
}

func (s *SyncService) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SyncService) setRunning(running bool) {
	s.mu.Lock()
	s.status.Running = running
	s.mu.Unlock()
}
