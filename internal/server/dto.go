package server

import (
	"time"

	"wayfinder/internal/domain"
	"wayfinder/internal/grid"
	"wayfinder/internal/registry"
	"wayfinder/internal/track"
	"wayfinder/internal/validate"
)

// Request payloads

type ValidateRequest struct {
	Source   string `json:"source"`
	TypeName string `json:"type_name"`
}

type RepairRequest struct {
	Source   string `json:"source"`
	TypeName string `json:"type_name"`
	Provider string `json:"provider,omitempty"`
}

type GenerateRequest struct {
	Description string `json:"description"`
	TypeName    string `json:"type_name"`
	Provider    string `json:"provider,omitempty"`
}

type LoadAlgorithmRequest struct {
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
}

type RunAlgorithmRequest struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Grid   [][]int    `json:"grid"`
	Start  grid.Point `json:"start"`
	End    grid.Point `json:"end"`
}

// Responses

type DiagnosticResponse struct {
	Level      string `json:"level"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	Line       int    `json:"line,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

type ReportResponse struct {
	Valid       bool                 `json:"valid"`
	Score       int                  `json:"score"`
	Errors      []DiagnosticResponse `json:"errors"`
	Warnings    []DiagnosticResponse `json:"warnings"`
	Suggestions []DiagnosticResponse `json:"suggestions"`
}

type TaskSubmittedResponse struct {
	TaskID string `json:"task_id"`
}

type TaskResponse struct {
	ID                 string  `json:"id"`
	Type               string  `json:"type"`
	Description        string  `json:"description,omitempty"`
	Status             string  `json:"status"`
	Progress           float64 `json:"progress"`
	CurrentStep        string  `json:"current_step,omitempty"`
	StepIndex          int     `json:"step_index"`
	TotalSteps         int     `json:"total_steps"`
	Error              string  `json:"error,omitempty"`
	Result             any     `json:"result,omitempty"`
	CreatedAt          string  `json:"created_at"`
	StartedAt          string  `json:"started_at,omitempty"`
	EndedAt            string  `json:"ended_at,omitempty"`
	ElapsedSeconds     float64 `json:"elapsed_seconds"`
	EstimatedRemaining float64 `json:"estimated_remaining_seconds,omitempty"`
}

type AlgorithmResponse struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Builtin     bool   `json:"builtin"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type RunResultResponse struct {
	Path    []grid.Point `json:"path"`
	Visited []grid.Point `json:"visited"`
}

type RepairJobResponse struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	Algorithm  string  `json:"algorithm"`
	Provider   string  `json:"provider"`
	Status     string  `json:"status"`
	Iterations int     `json:"iterations"`
	FinalScore int     `json:"final_score"`
	Error      string  `json:"error,omitempty"`
	Elapsed    float64 `json:"elapsed_seconds"`
	CreatedAt  string  `json:"created_at"`
}

type ProviderResponse struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	Default bool   `json:"default"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

// Mappers

func mapDiagnostics(ds []validate.Diagnostic) []DiagnosticResponse {
	out := make([]DiagnosticResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, DiagnosticResponse{
			Level:      d.Level,
			Category:   d.Category,
			Message:    d.Message,
			Line:       d.Line,
			Suggestion: d.Suggestion,
		})
	}
	return out
}

func reportResponse(r validate.Report) ReportResponse {
	return ReportResponse{
		Valid:       r.Valid,
		Score:       r.Score,
		Errors:      mapDiagnostics(r.Errors),
		Warnings:    mapDiagnostics(r.Warnings),
		Suggestions: mapDiagnostics(r.Suggestions),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func taskResponse(s track.Snapshot) TaskResponse {
	return TaskResponse{
		ID:                 s.ID,
		Type:               string(s.Type),
		Description:        s.Description,
		Status:             string(s.Status),
		Progress:           s.Progress,
		CurrentStep:        s.CurrentStep,
		StepIndex:          s.StepIndex,
		TotalSteps:         s.TotalSteps,
		Error:              s.Error,
		Result:             s.Result,
		CreatedAt:          formatTime(s.CreatedAt),
		StartedAt:          formatTime(s.StartedAt),
		EndedAt:            formatTime(s.EndedAt),
		ElapsedSeconds:     s.Elapsed,
		EstimatedRemaining: s.EstimatedRemaining,
	}
}

func mapTasks(snaps []track.Snapshot) []TaskResponse {
	out := make([]TaskResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, taskResponse(s))
	}
	return out
}

func algorithmResponse(info registry.Info) AlgorithmResponse {
	resp := AlgorithmResponse{
		Name:        info.Name,
		Description: info.Description,
		Builtin:     info.Builtin,
	}
	resp.CreatedAt = formatTime(info.CreatedAt)
	return resp
}

func mapAlgorithms(infos []registry.Info) []AlgorithmResponse {
	out := make([]AlgorithmResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, algorithmResponse(info))
	}
	return out
}

func repairJobResponse(j domain.RepairJob) RepairJobResponse {
	return RepairJobResponse{
		ID:         j.ID,
		TaskID:     j.TaskID,
		Algorithm:  j.Algorithm,
		Provider:   j.Provider,
		Status:     j.Status,
		Iterations: j.Iterations,
		FinalScore: j.FinalScore,
		Error:      j.Error,
		Elapsed:    j.Elapsed,
		CreatedAt:  j.CreatedAt,
	}
}

func mapRepairJobs(jobs []domain.RepairJob) []RepairJobResponse {
	out := make([]RepairJobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, repairJobResponse(j))
	}
	return out
}

func mapEvents(evts []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(evts))
	for _, e := range evts {
		out = append(out, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			Payload:    e.Payload,
		})
	}
	return out
}
