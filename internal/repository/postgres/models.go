package postgres

import (
	"time"

	"github.com/sakif/scriptbox/internal/model"
)

// ExecutionModel is the GORM row for one execution log entry.
type ExecutionModel struct {
	ID            string    `gorm:"type:varchar(20);primaryKey"`
	Identity      string    `gorm:"type:varchar(255);not null;index:idx_executions_identity_executed_at,priority:1"`
	InputArgs     string    `gorm:"type:text;not null;default:''"`
	OutputResult  *string   `gorm:"type:text"`
	Success       bool      `gorm:"not null;default:false"`
	ErrorMessage  *string   `gorm:"type:text"`
	ExecutionTime float64   `gorm:"not null;default:0"`
	Status        string    `gorm:"type:varchar(32);not null;default:''"`
	ExecutedAt    time.Time `gorm:"not null;index:idx_executions_identity_executed_at,priority:2;index"`
}

func (ExecutionModel) TableName() string { return "executions" }

func toExecutionModel(e *model.Execution) ExecutionModel {
	return ExecutionModel{
		ID:            e.ID,
		Identity:      e.Identity,
		InputArgs:     e.InputArgs,
		OutputResult:  e.OutputResult,
		Success:       e.Success,
		ErrorMessage:  e.ErrorMessage,
		ExecutionTime: e.ElapsedSeconds,
		Status:        e.Status,
		ExecutedAt:    e.ExecutedAt,
	}
}

func toExecutionDomain(m *ExecutionModel) model.Execution {
	return model.Execution{
		ID:             m.ID,
		Identity:       m.Identity,
		InputArgs:      m.InputArgs,
		OutputResult:   m.OutputResult,
		Success:        m.Success,
		ErrorMessage:   m.ErrorMessage,
		ElapsedSeconds: m.ExecutionTime,
		Status:         m.Status,
		ExecutedAt:     m.ExecutedAt.UTC(),
	}
}
