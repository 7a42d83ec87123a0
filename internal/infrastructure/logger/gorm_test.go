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

func TestGormLogger_Trace(t *testing.T) {
	sqlFn := func() (string, int64) { return "SELECT * FROM listings", 3 }

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		begin   time.Time
		err     error
		wantMsg string
	}{
		{"error", gormlogger.Warn, time.Now(), errors.New("boom"), "SQL Error"},
		{"not found ignored", gormlogger.Warn, time.Now(), gormlogger.ErrRecordNotFound, ""},
		{"slow", gormlogger.Warn, time.Now().Add(-time.Second), nil, "Slow SQL"},
		{"fast at warn", gormlogger.Warn, time.Now(), nil, ""},
		{"fast at info", gormlogger.Info, time.Now(), nil, "SQL Query"},
		{"silent", gormlogger.Silent, time.Now(), errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			gl := NewGormLogger(zap.New(core), tt.level, 100*time.Millisecond)

			gl.Trace(WithRequestID(context.Background(), "req-7"), tt.begin, sqlFn, tt.err)

			if tt.wantMsg == "" {
				assert.Equal(t, 0, recorded.Len())
				return
			}
			logs := recorded.FilterMessage(tt.wantMsg).All()
			if assert.Len(t, logs, 1) {
				assert.Equal(t, "req-7", logs[0].ContextMap()["request_id"])
			}
		})
	}
}

func TestGormLogger_LogMode(t *testing.T) {
	gl := NewGormLogger(zap.NewNop(), gormlogger.Warn, 0)
	quiet := gl.LogMode(gormlogger.Silent).(*GormLogger)

	assert.Equal(t, gormlogger.Silent, quiet.level)
	assert.Equal(t, gormlogger.Warn, gl.level)
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Error, GormLevel("error"))
	assert.Equal(t, gormlogger.Silent, GormLevel("silent"))
	assert.Equal(t, gormlogger.Warn, GormLevel("info"))
}
