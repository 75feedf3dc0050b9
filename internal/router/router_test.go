package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mir00r/stand-router/internal/domain"
	apperrors "github.com/mir00r/stand-router/internal/errors"
	"github.com/mir00r/stand-router/internal/registry"
	"github.com/mir00r/stand-router/internal/replica"
	"github.com/mir00r/stand-router/internal/service"
	"github.com/mir00r/stand-router/internal/stand"
	"github.com/mir00r/stand-router/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingHandle records invocations and delegates to fn
type countingHandle struct {
	name  string
	calls int64
	fn    func(ctx context.Context, amount float64, id domain.CorrelationID) (float64, error)
}

func (h *countingHandle) Name() string { return h.name }
func (h *countingHandle) ApplyConfig(domain.ConfigBlob) error { return nil }
func (h *countingHandle) Describe() domain.BackendDescription {
	return domain.BackendDescription{Name: h.name, Replicas: 1}
}
func (h *countingHandle) Invoke(ctx context.Context, amount float64, id domain.CorrelationID) (float64, error) {
	atomic.AddInt64(&h.calls, 1)
	return h.fn(ctx, amount, id)
}

func newStandRegistry(t *testing.T, kinds ...stand.Kind) *registry.Registry {
	t.Helper()
	log := logger.NewNop()
	reg := registry.New()
	for _, kind := range kinds {
		kind := kind
		pool, err := replica.NewPool(replica.Options{Name: kind.Name, Replicas: 2}, func(i int) domain.Backend {
			return stand.New(kind, i, log)
		}, log)
		require.NoError(t, err)
		t.Cleanup(pool.Close)
		require.NoError(t, reg.Register(kind.Name, pool))
	}
	reg.Seal()
	return reg
}

func TestMangoScenario(t *testing.T) {
	reg := newStandRegistry(t, stand.Kind{Name: "MANGO", DefaultPrice: 1})
	r := New(reg, Options{}, service.NewMetrics(), logger.NewNop())
	ctx := context.Background()

	resp, err := r.Dispatch(ctx, "MANGO", 3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, resp.Total)
	assert.NotEmpty(t, resp.RequestID)

	handle, _ := reg.Lookup("MANGO")
	require.NoError(t, handle.ApplyConfig(domain.ConfigBlob{"price": 3}))

	resp, err = r.Dispatch(ctx, "MANGO", 3)
	require.NoError(t, err)
	assert.Equal(t, 9.0, resp.Total)

	_, err = r.Dispatch(ctx, "DURIAN", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownTarget))
}

func TestUnknownTargetNeverReachesBackend(t *testing.T) {
	h := &countingHandle{name: "MANGO", fn: func(context.Context, float64, domain.CorrelationID) (float64, error) {
		return 1, nil
	}}
	reg := registry.New()
	require.NoError(t, reg.Register("MANGO", h))
	reg.Seal()

	metrics := service.NewMetrics()
	r := New(reg, Options{}, metrics, logger.NewNop())

	for _, target := range []string{"DURIAN", "mango", "MANGO "} {
		resp, err := r.Dispatch(context.Background(), target, 1)
		assert.Nil(t, resp)
		assert.True(t, errors.Is(err, apperrors.ErrUnknownTarget))
	}

	assert.Equal(t, int64(0), atomic.LoadInt64(&h.calls))
	assert.Equal(t, int64(3), metrics.GetUnknownTargets())
	assert.Equal(t, int64(0), metrics.GetTotalRequests())
}

func TestEmptyTargetIsInvalidRequest(t *testing.T) {
	r := New(registry.New(), Options{}, nil, logger.NewNop())

	_, err := r.Dispatch(context.Background(), "", 1)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidRequest))
}

func TestCorrelationIDReachesBackendAndResponse(t *testing.T) {
	var seen sync.Map
	h := &countingHandle{name: "PEAR", fn: func(_ context.Context, amount float64, id domain.CorrelationID) (float64, error) {
		seen.Store(id, true)
		return amount, nil
	}}
	reg := registry.New()
	require.NoError(t, reg.Register("PEAR", h))
	reg.Seal()
	r := New(reg, Options{}, nil, logger.NewNop())

	ids := make(map[domain.CorrelationID]bool)
	for i := 0; i < 50; i++ {
		resp, err := r.Dispatch(context.Background(), "PEAR", float64(i))
		require.NoError(t, err)
		assert.Equal(t, float64(i), resp.Total)

		_, ok := seen.Load(resp.RequestID)
		assert.True(t, ok, "backend never saw %s", resp.RequestID)
		assert.False(t, ids[resp.RequestID], "reused %s", resp.RequestID)
		ids[resp.RequestID] = true
	}
}

func TestSilentBackendResolvesToUnavailable(t *testing.T) {
	h := &countingHandle{name: "SILENT", fn: func(ctx context.Context, _ float64, _ domain.CorrelationID) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}
	reg := registry.New()
	require.NoError(t, reg.Register("SILENT", h))
	reg.Seal()

	metrics := service.NewMetrics()
	r := New(reg, Options{Timeout: 30 * time.Millisecond}, metrics, logger.NewNop())

	start := time.Now()
	_, err := r.Dispatch(context.Background(), "SILENT", 1)
	require.Error(t, err)

	assert.True(t, errors.Is(err, apperrors.ErrBackendUnavailable))
	assert.False(t, errors.Is(err, apperrors.ErrUnknownTarget))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), metrics.GetTotalErrors())

	var dErr *apperrors.DispatchError
	require.True(t, errors.As(err, &dErr))
	assert.NotEmpty(t, dErr.RequestID)
}

func TestInvalidPayloadStaysDistinct(t *testing.T) {
	reg := newStandRegistry(t, stand.Kind{Name: "ORANGE", DefaultPrice: 0.5})
	r := New(reg, Options{}, nil, logger.NewNop())

	_, err := r.Dispatch(context.Background(), "ORANGE", -2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPayload))
	assert.False(t, errors.Is(err, apperrors.ErrBackendUnavailable))
}

func TestPlainBackendErrorBecomesUnavailable(t *testing.T) {
	h := &countingHandle{name: "FLAKY", fn: func(context.Context, float64, domain.CorrelationID) (float64, error) {
		return 0, errors.New("connection reset")
	}}
	reg := registry.New()
	require.NoError(t, reg.Register("FLAKY", h))
	reg.Seal()
	r := New(reg, Options{}, nil, logger.NewNop())

	_, err := r.Dispatch(context.Background(), "FLAKY", 1)
	assert.True(t, errors.Is(err, apperrors.ErrBackendUnavailable))
	assert.Equal(t, int64(1), atomic.LoadInt64(&h.calls))
}

func TestSlowDispatchDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	slow := &countingHandle{name: "SLOW", fn: func(ctx context.Context, _ float64, _ domain.CorrelationID) (float64, error) {
		select {
		case <-release:
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}}
	fast := &countingHandle{name: "FAST", fn: func(_ context.Context, amount float64, _ domain.CorrelationID) (float64, error) {
		return amount * 2, nil
	}}
	reg := registry.New()
	require.NoError(t, reg.RegisterAll([]domain.BackendHandle{slow, fast}))
	reg.Seal()
	r := New(reg, Options{}, nil, logger.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := r.Dispatch(context.Background(), "SLOW", 1)
		done <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt64(&slow.calls) == 1 }, time.Second, time.Millisecond)

	resp, err := r.Dispatch(context.Background(), "FAST", 4)
	require.NoError(t, err)
	assert.Equal(t, 8.0, resp.Total)

	close(release)
	assert.NoError(t, <-done)
}

func TestConcurrentDispatchAndConfigPushes(t *testing.T) {
	reg := newStandRegistry(t, stand.Kind{Name: "MANGO", DefaultPrice: 1})
	r := New(reg, Options{}, nil, logger.NewNop())
	handle, _ := reg.Lookup("MANGO")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				resp, err := r.Dispatch(context.Background(), "MANGO", 3)
				if assert.NoError(t, err) {
					assert.Contains(t, []float64{3, 9}, resp.Total)
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		blob := domain.ConfigBlob{}
		if i%2 == 0 {
			blob["price"] = 3
		}
		require.NoError(t, handle.ApplyConfig(blob))
	}
	wg.Wait()
}
