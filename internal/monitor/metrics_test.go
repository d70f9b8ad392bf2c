package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/studypulse/timeline/internal/testutil"
)

func TestMetricsCollector(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     "METRICS",
		Subjects: []string{"metrics.>"},
		Storage:  nats.MemoryStorage,
	})
	require.NoError(t, err)

	collector := NewMetricsCollector(js, 500*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, collector.Start(ctx))
	defer collector.Stop()

	collector.RecordEvaluation("study-1", 5, 20*time.Millisecond)
	collector.RecordEvaluation("study-1", 3, 10*time.Millisecond)
	collector.RecordEvaluation("study-2", 1, 5*time.Millisecond)

	t.Run("Aggregates Per Study", func(t *testing.T) {
		stats := collector.GetStats()
		require.Contains(t, stats, "study-1")
		require.Contains(t, stats, "study-2")
		assert.Equal(t, int64(2), stats["study-1"].Evaluations)
		assert.Equal(t, int64(8), stats["study-1"].ActivitiesProduced)
		assert.Equal(t, 10*time.Millisecond, stats["study-1"].LastDuration)
		assert.Equal(t, int64(1), stats["study-2"].Evaluations)
	})

	t.Run("Stats Copy Is Isolated", func(t *testing.T) {
		stats := collector.GetStats()
		stats["study-1"].Evaluations = 999
		assert.Equal(t, int64(2), collector.GetStats()["study-1"].Evaluations)
	})

	t.Run("Publishes Snapshots", func(t *testing.T) {
		messages, err := testutil.ConsumeMessages(js, "metrics.evaluation", 3*time.Second)
		require.NoError(t, err)
		require.NotEmpty(t, messages)

		var snapshot struct {
			Timestamp time.Time          `json:"timestamp"`
			CPUUsage  float64            `json:"cpu_usage"`
			Studies   []*EvaluationStats `json:"studies"`
		}
		require.NoError(t, json.Unmarshal(messages[len(messages)-1], &snapshot))
		assert.False(t, snapshot.Timestamp.IsZero())
		assert.Len(t, snapshot.Studies, 2)
	})
}
