package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/studypulse/timeline/internal/model"
	"github.com/studypulse/timeline/internal/service"
	"github.com/studypulse/timeline/internal/storage"
	"github.com/studypulse/timeline/internal/testutil"
)

func TestSeedExampleIsIdempotent(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	db, err := storage.Open(filepath.Join(t.TempDir(), "timeline.db"))
	require.NoError(t, err)
	defer db.Close()

	logger := zaptest.NewLogger(t)
	plans, err := storage.NewSQLitePlanStore(logger, db)
	require.NoError(t, err)
	events, err := storage.NewSQLiteEventStore(logger, db)
	require.NoError(t, err)

	viper.Set("app.example_study", "demo-study")
	viper.Set("app.example_health_code", "demo-participant")

	ctx := context.Background()
	intake := service.NewEventIntake(js, events, logger)
	require.NoError(t, intake.Start(ctx))

	// A restart re-runs seeding; the demo plan must not be duplicated.
	seedExample(ctx, logger, plans, intake)
	seedExample(ctx, logger, plans, intake)

	stored, err := plans.ListForStudy(ctx, "demo-study", model.ClientInfo{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, seedPlanGUID, stored[0].GUID)
}
