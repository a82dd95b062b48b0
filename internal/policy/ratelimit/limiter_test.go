package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-spider/internal/metrics"
)

func TestWaitSpacesRequestsPerDomain(t *testing.T) {
	t.Parallel()

	l := New(Config{DomainQPS: 10, Burst: 1}, metrics.New(prometheus.NewRegistry()))
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://example.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.example.com/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestDomainsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DomainQPS: 1, Burst: 1}, nil)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.com/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestUnlimitedAndCanceled(t *testing.T) {
	t.Parallel()

	unlimited := New(Config{}, nil)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Wait(context.Background(), "https://example.com"))
	}

	slow := New(Config{DomainQPS: 0.01, Burst: 1}, nil)
	require.NoError(t, slow.Wait(context.Background(), "https://example.com"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, slow.Wait(ctx, "https://example.com"))
}
