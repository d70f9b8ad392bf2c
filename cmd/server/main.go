package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/studypulse/timeline/internal/model"
	"github.com/studypulse/timeline/internal/monitor"
	"github.com/studypulse/timeline/internal/service"
	"github.com/studypulse/timeline/internal/storage"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatal("Failed to read config file", zap.Error(err))
	}

	// Connect to NATS with reconnect handling
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error",
				zap.String("subject", sub.Subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.urls.0"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Open storage
	db, err := storage.Open(viper.GetString("storage.db_path"))
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	planStore, err := storage.NewSQLitePlanStore(logger, db)
	if err != nil {
		logger.Fatal("Failed to create plan store", zap.Error(err))
	}
	eventStore, err := storage.NewSQLiteEventStore(logger, db)
	if err != nil {
		logger.Fatal("Failed to create event store", zap.Error(err))
	}
	activityStore, err := storage.NewSQLiteActivityStore(logger, db)
	if err != nil {
		logger.Fatal("Failed to create activity store", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Start metrics collection
	collector := monitor.NewMetricsCollector(js, viper.GetDuration("metrics.interval"), logger)
	if err := collector.Start(ctx); err != nil {
		logger.Fatal("Failed to start metrics collector", zap.Error(err))
	}
	defer collector.Stop()

	// Start event intake
	intake := service.NewEventIntake(js, eventStore, logger)
	if err := intake.Start(ctx); err != nil {
		logger.Fatal("Failed to start event intake", zap.Error(err))
	}

	evaluation := service.NewEvaluationService(logger, planStore, eventStore, activityStore,
		collector, viper.GetInt("client.compat_app_version"))

	// Seed an example plan and participant so a fresh install produces a
	// visible timeline.
	if viper.GetBool("app.seed_example") {
		seedExample(ctx, logger, planStore, intake)
	}

	// Periodically re-evaluate the example participant's timeline
	go func() {
		ticker := time.NewTicker(viper.GetDuration("evaluation.refresh_interval"))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				activities, err := evaluation.ScheduledActivities(ctx, service.EvaluationRequest{
					StudyID:      viper.GetString("app.example_study"),
					HealthCode:   viper.GetString("app.example_health_code"),
					WindowStart:  now,
					WindowEnd:    now.AddDate(0, 0, viper.GetInt("evaluation.days_ahead")),
					Now:          now,
					TimeZone:     time.Local,
					MinimumCount: viper.GetInt("evaluation.minimum_count"),
				})
				if err != nil {
					logger.Error("Failed to evaluate timeline", zap.Error(err))
					continue
				}
				logger.Info("Evaluated timeline",
					zap.String("study_id", viper.GetString("app.example_study")),
					zap.Int("activity_count", len(activities)))
			}
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Server shutting down gracefully")
}

// Fixed seed GUIDs keep restarts from stacking duplicate demo plans.
const (
	seedPlanGUID     = "5f3c7a1e-9d42-4b8a-b6f0-2c8e1d7a9b34"
	seedActivityGUID = "0b6d2f84-7c15-4e9a-8d3b-f1a52c7e6d90"
)

// seedExample creates a weekly survey plan and enrolls a demo participant.
// Seeding is idempotent: a plan already present is left alone.
func seedExample(ctx context.Context, logger *zap.Logger, plans storage.PlanStore, intake *service.EventIntake) {
	studyID := viper.GetString("app.example_study")
	healthCode := viper.GetString("app.example_health_code")

	existing, err := plans.Get(ctx, seedPlanGUID)
	if err != nil {
		logger.Error("Failed to check for seed plan", zap.Error(err))
		return
	}
	if existing != nil {
		logger.Info("Seed plan already present", zap.String("guid", seedPlanGUID))
		return
	}

	morning, err := model.ParseTimeOfDay("08:00")
	if err != nil {
		logger.Error("Failed to parse time of day", zap.Error(err))
		return
	}

	plan := &model.SchedulePlan{
		GUID:    seedPlanGUID,
		Label:   "Weekly mood survey",
		StudyID: studyID,
		Strategy: model.Strategy{
			Type: model.StrategySimple,
			Schedule: &model.Schedule{
				Label:        "Weekly after enrollment",
				ScheduleType: model.ScheduleTypeRecurring,
				EventID:      model.EventEnrollment,
				Interval:     7 * 24 * time.Hour,
				TimesOfDay:   []model.TimeOfDay{morning},
				Expires:      3 * 24 * time.Hour,
				Activities: []model.Activity{{
					GUID:  seedActivityGUID,
					Label: "Mood survey",
					Type:  model.ActivityTypeSurvey,
					Ref:   "mood-survey-v1",
				}},
			},
		},
	}
	if err := plans.Create(ctx, plan); err != nil {
		logger.Error("Failed to seed example plan", zap.Error(err))
		return
	}

	if err := intake.PublishEvent(ctx, &model.EventRecord{
		StudyID:    studyID,
		HealthCode: healthCode,
		EventID:    model.EventEnrollment,
		Timestamp:  time.Now(),
	}); err != nil {
		logger.Error("Failed to publish enrollment event", zap.Error(err))
	}
}
