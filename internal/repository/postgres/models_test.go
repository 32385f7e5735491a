package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/scriptbox/internal/model"
)

func TestExecutionModelConversion(t *testing.T) {
	msg := "undefined: open"
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	e := &model.Execution{
		ID:             "d0abc",
		Identity:       "alice",
		InputArgs:      "1,2",
		ErrorMessage:   &msg,
		ElapsedSeconds: 0.25,
		Status:         "runtime_fault",
		ExecutedAt:     at,
	}

	row := toExecutionModel(e)
	assert.Equal(t, 0.25, row.ExecutionTime)
	assert.Nil(t, row.OutputResult)

	back := toExecutionDomain(&row)
	assert.Equal(t, e.ID, back.ID)
	assert.Equal(t, e.Identity, back.Identity)
	assert.Equal(t, e.InputArgs, back.InputArgs)
	assert.Equal(t, &msg, back.ErrorMessage)
	assert.Equal(t, e.Status, back.Status)
	assert.True(t, at.Equal(back.ExecutedAt))
	assert.Equal(t, time.UTC, back.ExecutedAt.Location())
}

func TestExecutionModelTableName(t *testing.T) {
	assert.Equal(t, "executions", ExecutionModel{}.TableName())
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	assert.Equal(t, 10, c.maxOpen())
	assert.Equal(t, 2, c.maxIdle())
	assert.Equal(t, 30*time.Minute, c.maxLifetime())

	c = Config{MaxOpenConns: 3, MaxIdleConns: 1, ConnMaxLifetime: time.Minute}
	assert.Equal(t, 3, c.maxOpen())
	assert.Equal(t, 1, c.maxIdle())
	assert.Equal(t, time.Minute, c.maxLifetime())
}
