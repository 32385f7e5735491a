// Package model defines the data structures shared across layers.
package model

import "time"

// Execution is one entry of the execution log: who ran what, and how it
// ended. OutputResult is only set for successful runs and ErrorMessage only
// for failed ones.
type Execution struct {
	ID             string    `json:"id"`
	Identity       string    `json:"identity"`
	InputArgs      string    `json:"inputArgs"`
	OutputResult   *string   `json:"outputResult"`
	Success        bool      `json:"success"`
	ErrorMessage   *string   `json:"errorMessage"`
	ElapsedSeconds float64   `json:"executionTime"`
	Status         string    `json:"status"`
	ExecutedAt     time.Time `json:"executedAt"`
}
