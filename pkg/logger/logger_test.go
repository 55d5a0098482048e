package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestInit_Level(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, Init("production", "debug").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, Init("production", "").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, Init("development", "loud").GetLevel())
}

func TestGorm_ProductionHidesStatements(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	Gorm(l, true, false).Info(context.Background(), "select %d", 1)
	assert.Empty(t, buf.String())

	Gorm(l, true, false).Warn(context.Background(), "slow %s", "query")
	assert.Contains(t, buf.String(), "slow query")
	assert.Contains(t, buf.String(), `"component":"gorm"`)

	buf.Reset()
	Gorm(l, true, true).Info(context.Background(), "select %d", 1)
	assert.Contains(t, buf.String(), "select 1")
}

func TestGorm_ImplementsInterface(t *testing.T) {
	var _ gormlogger.Interface = Gorm(zerolog.Nop(), false, false)
}
