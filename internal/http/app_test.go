package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"auctionsearch/internal/config"
	"auctionsearch/internal/domain"
	"auctionsearch/internal/http/handlers"
	"auctionsearch/internal/repos"
	"auctionsearch/internal/services"
)

type countingFetcher struct{ calls atomic.Int32 }

func (f *countingFetcher) FetchSince(context.Context, *time.Time) ([]domain.Item, error) {
	f.calls.Add(1)
	return nil, nil
}

type testApp struct {
	app     *fiber.App
	items   *repos.ItemRepo
	sync    *services.SyncService
	fetcher *countingFetcher
}

func testConfig() config.Config {
	cfg := config.Config{DBDSN: ":memory:"}
	cfg.Search.RateLimit = 100
	cfg.Search.RateWindow = time.Minute
	return cfg
}

// newTestApp wires the real handlers over an in-memory replica, the way
// main does, minus the network-facing middleware.
func newTestApp(t *testing.T, cfg config.Config) *testApp {
	t.Helper()
	db, err := repos.OpenDB(cfg.DBDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	items := repos.NewItemRepo(db)
	require.NoError(t, items.EnsureTextIndex(context.Background()))

	fetcher := &countingFetcher{}
	syncSvc := services.NewSyncService(items, fetcher)
	syncSvc.OnStart = false

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Use(requestid.New())
	handlers.NewDeps(items, services.NewSearchService(items), syncSvc).Mount(app, cfg)

	return &testApp{app: app, items: items, sync: syncSvc, fetcher: fetcher}
}

func (a *testApp) seed(t *testing.T, items ...domain.Item) {
	t.Helper()
	_, err := a.items.UpsertMany(context.Background(), items)
	require.NoError(t, err)
}

func auction(id, mk string, end time.Duration) domain.Item {
	now := time.Now().UTC()
	return domain.Item{
		ID: id, Make: mk, Model: "Model", Color: "Black",
		Seller: "alice", Status: domain.StatusLive,
		CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Minute),
		AuctionEnd: now.Add(end),
	}
}

type logEntry struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	buf := &lockedBuf{}
	old := zlog.Logger
	zlog.Logger = zerolog.New(buf)
	defer func() { zlog.Logger = old }()

	fn()

	buf.mu.Lock()
	defer buf.mu.Unlock()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.b.String()), "\n") {
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func findAction(entries []logEntry, action string) (logEntry, bool) {
	for _, e := range entries {
		if e.Action == action {
			return e, true
		}
	}
	return logEntry{}, false
}
