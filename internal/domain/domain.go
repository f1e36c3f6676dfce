package domain

type Algorithm struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
	Score       int    `json:"score"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type RepairJob struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	Algorithm   string  `json:"algorithm"`
	Provider    string  `json:"provider"`
	Status      string  `json:"status" enum:"succeeded,failed"`
	Iterations  int     `json:"iterations"`
	FinalScore  int     `json:"final_score"`
	FinalSource string  `json:"final_source"`
	HistoryJSON string  `json:"history_json,omitempty"`
	Error       string  `json:"error,omitempty"`
	Elapsed     float64 `json:"elapsed_seconds"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
