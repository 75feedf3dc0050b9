package stand

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/mir00r/stand-router/internal/domain"
	apperrors "github.com/mir00r/stand-router/internal/errors"
	"github.com/mir00r/stand-router/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mango = Kind{Name: "MANGO", DefaultPrice: 1}

func newTestStand() *Stand {
	return New(mango, 0, logger.NewNop())
}

func TestStandStartsWithDefaults(t *testing.T) {
	s := newTestStand()

	total, err := s.Invoke(3, "req_1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, total)
	assert.Equal(t, uint64(0), s.Version())
}

func TestApplyConfigReplacesPrice(t *testing.T) {
	s := newTestStand()

	require.NoError(t, s.ApplyConfig(domain.ConfigBlob{"price": 3}))

	total, err := s.Invoke(3, "req_2")
	require.NoError(t, err)
	assert.Equal(t, 9.0, total)
	assert.Equal(t, uint64(1), s.Version())
}

func TestEmptyBlobResetsToDefaultNotPrevious(t *testing.T) {
	s := newTestStand()
	require.NoError(t, s.ApplyConfig(domain.ConfigBlob{"price": 7}))
	require.NoError(t, s.ApplyConfig(domain.ConfigBlob{}))

	assert.Equal(t, 1.0, s.Config().Price)
}

func TestRepeatedApplyIsIdempotent(t *testing.T) {
	s := newTestStand()
	blob := domain.ConfigBlob{"price": 2.5}

	require.NoError(t, s.ApplyConfig(blob))
	first, _ := s.Invoke(4, "req_a")
	require.NoError(t, s.ApplyConfig(blob))
	second, _ := s.Invoke(4, "req_b")

	assert.Equal(t, first, second)
	assert.Equal(t, 10.0, second)
}

func TestRejectedConfigKeepsPrevious(t *testing.T) {
	tests := []struct {
		name string
		blob domain.ConfigBlob
	}{
		{"string price", domain.ConfigBlob{"price": "3"}},
		{"negative price", domain.ConfigBlob{"price": -1}},
		{"nan price", domain.ConfigBlob{"price": math.NaN()}},
		{"infinite price", domain.ConfigBlob{"price": math.Inf(1)}},
		{"null price", domain.ConfigBlob{"price": nil}},
		{"unknown key", domain.ConfigBlob{"price": 4, "discount": 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStand()
			require.NoError(t, s.ApplyConfig(domain.ConfigBlob{"price": 5}))

			err := s.ApplyConfig(tt.blob)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrConfigRejected))
			assert.Equal(t, 5.0, s.Config().Price)
			assert.Equal(t, uint64(1), s.Version())
		})
	}
}

func TestParseAcceptsDecoderNumberShapes(t *testing.T) {
	for _, v := range []interface{}{3, int64(3), float32(3), 3.0, uint(3), json.Number("3")} {
		cfg, err := ParsePriceConfig(mango, domain.ConfigBlob{"price": v})
		require.NoError(t, err, "%T", v)
		assert.Equal(t, 3.0, cfg.Price)
	}
}

func TestInvokeRejectsInvalidAmount(t *testing.T) {
	s := newTestStand()

	for _, amount := range []float64{-1, math.NaN(), math.Inf(-1)} {
		_, err := s.Invoke(amount, "req_bad")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidPayload))
	}
}

func TestConcurrentApplyAndInvokeNeverMixConfigs(t *testing.T) {
	s := newTestStand()
	const amount = 10.0
	allowed := map[float64]bool{1 * amount: true, 2 * amount: true, 3 * amount: true}

	var writer, readers sync.WaitGroup
	stop := make(chan struct{})

	writer.Add(1)
	go func() {
		defer writer.Done()
		prices := []interface{}{2, 3, nil}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			blob := domain.ConfigBlob{}
			if p := prices[i%len(prices)]; p != nil {
				blob["price"] = p
			}
			_ = s.ApplyConfig(blob)
		}
	}()

	results := make(chan float64, 4000)
	for w := 0; w < 4; w++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for i := 0; i < 1000; i++ {
				total, err := s.Invoke(amount, "req_c")
				if err == nil {
					results <- total
				}
			}
		}()
	}

	readers.Wait()
	close(stop)
	writer.Wait()
	close(results)

	require.Len(t, results, 4000)
	for total := range results {
		assert.True(t, allowed[total], "unexpected total %v", total)
	}
}
