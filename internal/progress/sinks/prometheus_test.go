package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/site-spider/internal/progress"
)

func TestPrometheusSinkRecordsRun(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	run := [16]byte(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageCrawlStart},
		{RunID: run, TS: now, Stage: progress.StageCrawlStart},
		{RunID: run, TS: now, Stage: progress.StagePageScraped, Site: "example.com", URL: "https://example.com", StatusCode: 200, Records: 4},
		{RunID: run, TS: now, Stage: progress.StagePageFailed, Site: "example.com", URL: "https://example.com/x", StatusCode: 404},
		{RunID: run, TS: now, Stage: progress.StagePageFailed, URL: "https://nowhere"},
		{RunID: run, TS: now, Stage: progress.StageRecordsIndexed, Records: 3},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 2.0, testutil.ToFloat64(sink.crawlsStarted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.crawlsRunning), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("example.com", "scraped", "2xx")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("example.com", "failed", "4xx")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("unknown", "failed", "other")), 1e-9)
	require.InDelta(t, 4.0, testutil.ToFloat64(sink.recordsBySite.WithLabelValues("example.com")), 1e-9)
	require.InDelta(t, 3.0, testutil.ToFloat64(sink.recordsIndexed), 1e-9)

	done := []progress.Event{{RunID: run, TS: now, Stage: progress.StageCrawlDone, Dur: 2 * time.Second}}
	require.NoError(t, sink.Consume(context.Background(), done))
	require.NoError(t, sink.Consume(context.Background(), done))
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.crawlsRunning), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.crawlRuntime))
	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	run := [16]byte(uuid.New())
	batch := []progress.Event{
		{RunID: run, TS: time.Now(), Stage: progress.StageCrawlStart},
		{RunID: run, TS: time.Now(), Stage: progress.StagePageFailed, URL: "https://example.com", Note: "boom"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, zap.DebugLevel, entries[1].Level)
	require.Equal(t, "boom", entries[1].ContextMap()["note"])
	require.Equal(t, uuid.UUID(run).String(), entries[0].ContextMap()["run_id"])
}
