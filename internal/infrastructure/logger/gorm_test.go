package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func query() (string, int64) {
	return "SELECT * FROM invoices", 1
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		begin   time.Time
		err     error
		message string
		entries int
	}{
		{"error is logged", gormlogger.Warn, time.Now(), errors.New("boom"), "sql error", 1},
		{"record not found is quiet", gormlogger.Warn, time.Now(), gormlogger.ErrRecordNotFound, "", 0},
		{"slow query warns", gormlogger.Warn, time.Now().Add(-time.Second), nil, "slow sql", 1},
		{"fast query at warn is quiet", gormlogger.Warn, time.Now(), nil, "", 0},
		{"info logs every query", gormlogger.Info, time.Now(), nil, "sql", 1},
		{"silent logs nothing", gormlogger.Silent, time.Now(), errors.New("boom"), "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			gl := NewGormLogger(zap.New(core), tt.level, 100*time.Millisecond)

			gl.Trace(WithRequestID(context.Background(), "req-9"), tt.begin, query, tt.err)

			assert.Equal(t, tt.entries, recorded.Len())
			if tt.entries > 0 {
				entry := recorded.All()[0]
				assert.Equal(t, tt.message, entry.Message)
				assert.Equal(t, "req-9", entry.ContextMap()["request_id"])
				assert.Equal(t, "SELECT * FROM invoices", entry.ContextMap()["sql"])
			}
		})
	}
}

func TestGormLogger_LogMode(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Error, 0)

	gl.Info(context.Background(), "hidden")
	gl.LogMode(gormlogger.Info).Info(context.Background(), "shown %d", 1)

	assert.Equal(t, 0, recorded.FilterMessage("hidden").Len())
	assert.Equal(t, 1, recorded.FilterMessage("shown 1").Len())
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, GormLevel("silent"))
	assert.Equal(t, gormlogger.Error, GormLevel("error"))
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, GormLevel("anything"))
}
