package domain

import "time"

type PipelineStage string

const (
	StageTextExtraction      PipelineStage = "text_extraction"
	StageTableReconstruction PipelineStage = "table_reconstruction"
	StageEntityExtraction    PipelineStage = "entity_extraction"
)

// Stages lists the pipeline in execution order.
func Stages() []PipelineStage {
	return []PipelineStage{
		StageTextExtraction,
		StageTableReconstruction,
		StageEntityExtraction,
	}
}

type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobReady     JobState = "ready"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

func (s JobState) Terminal() bool {
	return s == JobReady || s == JobFailed || s == JobCancelled
}

type StageAttempt struct {
	Stage     PipelineStage    `json:"stage"`
	Attempt   int              `json:"attempt"`
	Engine    ExtractionEngine `json:"engine,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	Error     string           `json:"error,omitempty"`
	Warning   string           `json:"warning,omitempty"`
}

type ProcessingJob struct {
	ID              string         `json:"id"`
	DocumentID      string         `json:"document_id"`
	Stage           PipelineStage  `json:"stage"`
	State           JobState       `json:"state"`
	Attempts        []StageAttempt `json:"attempts"`
	CancelRequested bool           `json:"cancel_requested"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RetriesForStage counts attempts beyond the first for one stage.
func (j *ProcessingJob) RetriesForStage(stage PipelineStage) int {
	n := 0
	for _, a := range j.Attempts {
		if a.Stage == stage {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return n - 1
}
