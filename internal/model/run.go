package model

import "time"

// PipelineRun is one recorded CLI invocation in the run log.
type PipelineRun struct {
	ID        string     `json:"id"`
	DocketID  string     `json:"docket_id"`
	Command   string     `json:"command"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
