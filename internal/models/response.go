package models

import "time"

// GenerateResponse is returned with 202 while the model is still being built
// and with 200 once it is ready.
type GenerateResponse struct {
	Status       string `json:"status" example:"succeeded"`
	TaskID       string `json:"taskId" example:"1ec04ced-4b87-44f6-a296-beee80777941"`
	Progress     int    `json:"progress,omitempty" example:"100"`
	ModelURL     string `json:"modelUrl,omitempty" example:"https://cdn.example.com/models/tripo/1ec04ced.glb"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	SourceURL    string `json:"sourceUrl,omitempty"`
	Cached       bool   `json:"cached,omitempty"`
}

type TaskError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

type TaskStatusResponse struct {
	TaskID       string     `json:"taskId"`
	Provider     string     `json:"provider"`
	Status       string     `json:"status" example:"processing"`
	Progress     int        `json:"progress"`
	ModelURL     string     `json:"modelUrl,omitempty"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	Error        *TaskError `json:"error,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type WebhookResponse struct {
	Status     string `json:"status" example:"ok"`
	TaskID     string `json:"taskId,omitempty"`
	TaskStatus string `json:"taskStatus,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Provider string `json:"provider,omitempty" example:"tripo"`
	Cache    string `json:"cache,omitempty" example:"ok"`
}
