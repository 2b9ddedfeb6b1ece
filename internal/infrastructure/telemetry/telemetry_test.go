package telemetry

import (
	"context"
	"testing"

	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSetupDisabled(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, config.TelemetryConfig{ServiceName: "invoicing"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tel.Tracer.IsEnabled())
	assert.False(t, tel.Profiler.IsEnabled())
	assert.Nil(t, tel.LogCore(zapcore.InfoLevel))
	assert.NotNil(t, tel.Tracer.Tracer("test"))
	assert.NotNil(t, tel.Meter.Meter("test"))
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestProfilerRequiresEndpoint(t *testing.T) {
	_, err := NewProfiler(config.TelemetryConfig{ProfilingEnabled: true}, zap.NewNop())
	assert.Error(t, err)

	p, err := NewProfiler(config.TelemetryConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{2, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{0, sdktrace.ParentBased(sdktrace.NeverSample()).Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, newSampler(tt.ratio).Description())
	}
}

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}
	log := zap.New(core)

	log.Info("dropped")
	log.Warn("kept")
	log.With(zap.String("k", "v")).Error("kept too")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
	assert.False(t, core.Enabled(zapcore.DebugLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
}

func TestInstrumentGorm(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	dbCfg := config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}

	t.Run("disabled leaves callbacks alone", func(t *testing.T) {
		require.NoError(t, InstrumentGorm(db, dbCfg, config.TelemetryConfig{}, zap.NewNop()))
		_, registered := db.Config.Plugins["otelgorm"]
		assert.False(t, registered)
	})

	t.Run("enabled registers plugin", func(t *testing.T) {
		cfg := config.TelemetryConfig{Enabled: true, DBTraceEnabled: true}
		require.NoError(t, InstrumentGorm(db, dbCfg, cfg, zap.NewNop()))
		_, registered := db.Config.Plugins["otelgorm"]
		assert.True(t, registered)
		assert.NoError(t, db.Exec("SELECT 1").Error)
	})
}

func TestDBName(t *testing.T) {
	assert.Equal(t, "local.db", dbName(config.DatabaseConfig{Driver: config.DriverSQLite, Path: "local.db"}))
	assert.Equal(t, "invoicing", dbName(config.DatabaseConfig{Driver: config.DriverPostgres, DBName: "invoicing"}))
}
