package services_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auctionsearch/internal/domain"
	"auctionsearch/internal/services"
	"auctionsearch/internal/upstream"
)

// fakeUpstream serves items updated after the watermark, like the system of record.
type fakeUpstream struct {
	mu         sync.Mutex
	items      []domain.Item
	watermarks []*time.Time
	err        error
}

func (f *fakeUpstream) FetchSince(_ context.Context, wm *time.Time) ([]domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watermarks = append(f.watermarks, wm)
	if f.err != nil {
		return nil, f.err
	}
	out := []domain.Item{}
	for _, it := range f.items {
		if wm == nil || it.UpdatedAt.After(*wm) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeUpstream) put(items ...domain.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		replaced := false
		for i := range f.items {
			if f.items[i].ID == it.ID {
				f.items[i] = it
				replaced = true
			}
		}
		if !replaced {
			f.items = append(f.items, it)
		}
	}
}

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.n.Add(1)
	return nil
}

func updatedItem(id string, updated time.Duration) domain.Item {
	it := liveItem(id, "Ford", time.Hour)
	it.UpdatedAt = now.Add(updated)
	return it
}

func TestSync_InitialLoadThenDelta(t *testing.T) {
	ctx := context.Background()
	r := memRepo(t)
	up := &fakeUpstream{}
	up.put(updatedItem("a", 1*time.Minute), updatedItem("b", 2*time.Minute))
	inv := &countingInvalidator{}
	svc := services.NewSyncService(r, up)
	svc.Cache = inv

	applied, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	require.Nil(t, up.watermarks[0], "empty replica requests a full load")

	wm1, err := r.LatestUpdatedAt(ctx)
	require.NoError(t, err)

	changed := updatedItem("a", 5*time.Minute)
	changed.CurrentHighBid = 900
	up.put(changed)

	applied, err = svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	require.NotNil(t, up.watermarks[1])
	assert.Equal(t, now.Add(2*time.Minute), *up.watermarks[1])

	wm2, err := r.LatestUpdatedAt(ctx)
	require.NoError(t, err)
	assert.False(t, wm2.Before(*wm1), "watermark must not move backwards")

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 900, got.CurrentHighBid)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), inv.n.Load())

	st := svc.Status()
	assert.Equal(t, 2, st.Runs)
	assert.Equal(t, 1, st.LastApplied)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.Watermark)
	assert.Equal(t, now.Add(5*time.Minute), *st.Watermark)
}

func TestSync_NothingNewLeavesReplicaAlone(t *testing.T) {
	ctx := context.Background()
	r := memRepo(t)
	up := &fakeUpstream{}
	up.put(updatedItem("a", time.Minute))
	inv := &countingInvalidator{}
	svc := services.NewSyncService(r, up)
	svc.Cache = inv

	_, err := svc.Run(ctx)
	require.NoError(t, err)
	applied, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, int32(1), inv.n.Load())
}

func TestSync_FetchFailureKeepsPriorState(t *testing.T) {
	ctx := context.Background()
	r := memRepo(t)
	up := &fakeUpstream{}
	up.put(updatedItem("a", time.Minute))
	svc := services.NewSyncService(r, up)

	_, err := svc.Run(ctx)
	require.NoError(t, err)

	up.err = errors.New("decode items: unexpected shape")
	up.put(updatedItem("b", 2*time.Minute))
	_, err = svc.Run(ctx)
	require.Error(t, err)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, svc.Status().LastError, "unexpected shape")
}

func TestSync_LoopRunsOnStartAndOnTrigger(t *testing.T) {
	r := memRepo(t)
	up := &fakeUpstream{}
	up.put(updatedItem("a", time.Minute))
	svc := services.NewSyncService(r, up)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Loop(ctx)
	}()

	require.Eventually(t, func() bool { return svc.Status().Runs >= 1 }, time.Second, 5*time.Millisecond)

	up.put(updatedItem("b", 2*time.Minute))
	svc.Trigger()
	require.Eventually(t, func() bool {
		n, err := r.Count(context.Background())
		return err == nil && n == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestSync_WithRetryingUpstreamClient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"a1","make":"Ford","model":"GT","color":"White",
			"seller":"bob","status":"Live","createdAt":"2024-06-01T10:00:00Z",
			"updatedAt":"2024-06-01T11:00:00Z","auctionEnd":"2024-06-02T10:00:00Z"}]`))
	}))
	defer srv.Close()

	r := memRepo(t)
	client := upstream.NewClient(upstream.Config{BaseURL: srv.URL, RetryDelay: time.Millisecond})
	svc := services.NewSyncService(r, client)

	applied, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, int32(4), calls.Load())

	got, err := r.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Ford", got.Make)
}
