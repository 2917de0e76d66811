package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/agenthands/moralgraph/internal/logger"
)

func observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestGormLogTrace(t *testing.T) {
	ctx := context.Background()
	l, logs := observed()
	g := newGormLog(l)
	query := func() (string, int64) { return "SELECT 1", 1 }

	g.Trace(ctx, time.Now(), query, nil)
	assert.Zero(t, logs.Len())

	g.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	g.Trace(ctx, time.Now(), query, errors.New("disk I/O error"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "query failed", entry.Message)
	assert.Equal(t, "SELECT 1", entry.ContextMap()["sql"])
	assert.Equal(t, "gorm", entry.ContextMap()["component"])

	g.Trace(ctx, time.Now().Add(-2*slowQueryThreshold), query, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "slow query", logs.All()[1].Message)

	g.LogMode(gormLogger.Info).Trace(ctx, time.Now(), query, nil)
	require.Equal(t, 3, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[2].Level)

	g.LogMode(gormLogger.Silent).Trace(ctx, time.Now(), query, errors.New("ignored"))
	assert.Equal(t, 3, logs.Len())
}

func TestOpenLogsThroughLogger(t *testing.T) {
	l, logs := observed()
	s, err := Open("sqlite", "file:moralgraph_gormlog?mode=memory&cache=shared", l)
	require.NoError(t, err)
	defer s.Close(context.Background())

	s.db.Exec("SELECT * FROM missing_table")
	assert.NotZero(t, logs.FilterMessage("query failed").Len())
}
