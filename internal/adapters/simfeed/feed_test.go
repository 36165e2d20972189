package simfeed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestFeed_GetPrices(t *testing.T) {
	feed, err := New(Config{
		Logger:      &mockLogger{},
		Seed:        42,
		StartPrices: map[string]float64{"BTCUSDT": 60000, "ETHUSDT": 3000},
	})
	require.NoError(t, err)

	prices, err := feed.GetPrices(context.Background(), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	require.NoError(t, err)
	require.Len(t, prices, 3)

	// Walks start near the configured price and stay positive.
	assert.InDelta(t, 60000, prices["BTCUSDT"], 60000*0.01)
	assert.InDelta(t, 3000, prices["ETHUSDT"], 3000*0.01)
	assert.Greater(t, prices["SOLUSDT"], 0.0, "unconfigured symbols get a default start price")
}

func TestFeed_WalkIsBoundedPerStep(t *testing.T) {
	feed, err := New(Config{Logger: &mockLogger{}, Seed: 7, Volatility: 0.01, StartPrices: map[string]float64{"ETHUSDT": 3000}})
	require.NoError(t, err)

	prev := 3000.0
	for i := 0; i < 1000; i++ {
		price, err := feed.GetPrice(context.Background(), "ETHUSDT")
		require.NoError(t, err)
		assert.Greater(t, price, 0.0)
		assert.LessOrEqual(t, price, prev*1.01+1e-9)
		assert.GreaterOrEqual(t, price, prev*0.99-1e-9)
		prev = price
	}
}

func TestFeed_DeterministicWithSeed(t *testing.T) {
	a, err := New(Config{Logger: &mockLogger{}, Seed: 99})
	require.NoError(t, err)
	b, err := New(Config{Logger: &mockLogger{}, Seed: 99})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		pa, _ := a.GetPrice(context.Background(), "BTCUSDT")
		pb, _ := b.GetPrice(context.Background(), "BTCUSDT")
		assert.Equal(t, pa, pb)
	}
}
