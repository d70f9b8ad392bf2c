package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const metricsSubject = "metrics.evaluation"

// EvaluationStats aggregates evaluation activity for one study
type EvaluationStats struct {
	StudyID            string        `json:"study_id"`
	Evaluations        int64         `json:"evaluations"`
	ActivitiesProduced int64         `json:"activities_produced"`
	LastDuration       time.Duration `json:"last_duration"`
	LastEvaluatedAt    time.Time     `json:"last_evaluated_at"`
}

// MetricsCollector collects host and evaluation metrics and publishes them
// periodically for dashboards
type MetricsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	interval time.Duration
	mu       sync.RWMutex
	stats    map[string]*EvaluationStats
	stop     chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(js nats.JetStreamContext, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		js:       js,
		interval: interval,
		stats:    make(map[string]*EvaluationStats),
		stop:     make(chan struct{}),
	}
}

// Start starts the metrics collector
func (c *MetricsCollector) Start(ctx context.Context) error {
	c.logger.Info("Starting metrics collector", zap.Duration("interval", c.interval))
	go c.collectLoop(ctx)
	return nil
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.logger.Info("Stopping metrics collector")
	close(c.stop)
}

// RecordEvaluation records one timeline evaluation. Implements
// service.MetricsRecorder.
func (c *MetricsCollector) RecordEvaluation(studyID string, produced int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.stats[studyID]
	if !ok {
		stats = &EvaluationStats{StudyID: studyID}
		c.stats[studyID] = stats
	}
	stats.Evaluations++
	stats.ActivitiesProduced += int64(produced)
	stats.LastDuration = duration
	stats.LastEvaluatedAt = time.Now()
}

// GetStats returns a copy of the current per-study stats
func (c *MetricsCollector) GetStats() map[string]*EvaluationStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := make(map[string]*EvaluationStats, len(c.stats))
	for id, s := range c.stats {
		copied := *s
		stats[id] = &copied
	}
	return stats
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.collectMetrics(); err != nil {
				c.logger.Error("Failed to collect metrics", zap.Error(err))
			}
		}
	}
}

// collectMetrics samples host usage, merges in evaluation stats, and
// publishes the snapshot
func (c *MetricsCollector) collectMetrics() error {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		return fmt.Errorf("failed to get CPU usage: %w", err)
	}
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("failed to get memory usage: %w", err)
	}

	metrics := struct {
		Timestamp   time.Time          `json:"timestamp"`
		CPUUsage    float64            `json:"cpu_usage"`
		MemoryUsage float64            `json:"memory_usage"`
		Studies     []*EvaluationStats `json:"studies"`
	}{
		Timestamp:   time.Now(),
		CPUUsage:    cpuPercent[0],
		MemoryUsage: memInfo.UsedPercent,
	}

	c.mu.RLock()
	for _, stats := range c.stats {
		copied := *stats
		metrics.Studies = append(metrics.Studies, &copied)
	}
	c.mu.RUnlock()

	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if _, err := c.js.Publish(metricsSubject, data); err != nil {
		return fmt.Errorf("failed to publish metrics: %w", err)
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", metrics.CPUUsage),
		zap.Float64("memory_usage", metrics.MemoryUsage),
		zap.Int("study_count", len(metrics.Studies)))
	return nil
}
