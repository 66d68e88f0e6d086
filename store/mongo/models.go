package mongo

import (
	"fmt"
	"time"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

type progressModel struct {
	CurrentStep    string `bson:"current_step,omitempty"`
	TotalSteps     int    `bson:"total_steps,omitempty"`
	CompletedSteps int    `bson:"completed_steps,omitempty"`
	ProcessedItems int    `bson:"processed_items,omitempty"`
	TotalItems     int    `bson:"total_items,omitempty"`
}

type errorModel struct {
	Timestamp  time.Time      `bson:"timestamp"`
	Code       string         `bson:"code"`
	Message    string         `bson:"message"`
	Details    map[string]any `bson:"details,omitempty"`
	RetryCount int            `bson:"retry_count"`
}

type jobModel struct {
	ID          string         `bson:"_id"`
	Type        string         `bson:"type"`
	Status      string         `bson:"status"`
	Name        string         `bson:"name"`
	Description string         `bson:"description,omitempty"`
	Priority    int            `bson:"priority"`
	Progress    progressModel  `bson:"progress"`
	Result      map[string]any `bson:"result,omitempty"`
	Errors      []errorModel   `bson:"errors,omitempty"`
	Config      map[string]any `bson:"config,omitempty"`
	RetryCount  int            `bson:"retry_count"`
	MaxRetries  int            `bson:"max_retries"`
	RunAt       time.Time      `bson:"run_at"`
	StartedAt   *time.Time     `bson:"started_at,omitempty"`
	CompletedAt *time.Time     `bson:"completed_at,omitempty"`
	Revision    string         `bson:"revision"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	m := &jobModel{
		ID:          j.ID.String(),
		Type:        string(j.Type),
		Status:      string(j.Status),
		Name:        j.Name,
		Description: j.Description,
		Priority:    j.Priority,
		Progress: progressModel{
			CurrentStep:    j.Progress.CurrentStep,
			TotalSteps:     j.Progress.TotalSteps,
			CompletedSteps: j.Progress.CompletedSteps,
			ProcessedItems: j.Progress.ProcessedItems,
			TotalItems:     j.Progress.TotalItems,
		},
		Result:      j.Result,
		Config:      j.Config,
		RetryCount:  j.RetryCount,
		MaxRetries:  j.MaxRetries,
		RunAt:       j.RunAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Revision:    j.Revision,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	for _, e := range j.Errors {
		m.Errors = append(m.Errors, errorModel{
			Timestamp:  e.Timestamp,
			Code:       e.Code,
			Message:    e.Message,
			Details:    e.Details,
			RetryCount: e.RetryCount,
		})
	}
	return m
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("jobline/mongo: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: jobline.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
			Revision:  m.Revision,
		},
		ID:          parsedID,
		Type:        job.Type(m.Type),
		Status:      job.Status(m.Status),
		Name:        m.Name,
		Description: m.Description,
		Priority:    m.Priority,
		Progress: job.Progress{
			CurrentStep:    m.Progress.CurrentStep,
			TotalSteps:     m.Progress.TotalSteps,
			CompletedSteps: m.Progress.CompletedSteps,
			ProcessedItems: m.Progress.ProcessedItems,
			TotalItems:     m.Progress.TotalItems,
		},
		Result:      m.Result,
		Config:      m.Config,
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		RunAt:       m.RunAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}
	for _, e := range m.Errors {
		j.Errors = append(j.Errors, job.Error{
			Timestamp:  e.Timestamp,
			Code:       e.Code,
			Message:    e.Message,
			Details:    e.Details,
			RetryCount: e.RetryCount,
		})
	}
	return j, nil
}
