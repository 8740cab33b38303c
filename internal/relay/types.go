package relay

import (
	"net/url"
	"strings"
	"time"
)

// Accepted upload MIME types.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWEBP = "image/webp"
)

// Image is the source photo of a generation request. Exactly one of Data or URL
// is set.
type Image struct {
	Data     []byte
	MimeType string
	URL      string
}

// IsURL reports whether the image is referenced by URL rather than carried inline.
func (i Image) IsURL() bool {
	return i.URL != "" && len(i.Data) == 0
}

// Extension returns the short file type used by provider APIs (jpg, png, webp).
func (i Image) Extension() string {
	switch i.MimeType {
	case MimeJPEG:
		return "jpg"
	case MimePNG:
		return "png"
	case MimeWEBP:
		return "webp"
	}
	if i.URL != "" {
		path := strings.ToLower(i.URL)
		if u, err := url.Parse(i.URL); err == nil {
			path = strings.ToLower(u.Path)
		}
		switch {
		case strings.HasSuffix(path, ".png"):
			return "png"
		case strings.HasSuffix(path, ".webp"):
			return "webp"
		}
	}
	return "jpg"
}

// SubmitOptions carries optional per-request provider hints.
type SubmitOptions struct {
	ModelVersion string
}

// TaskHandle identifies a submitted provider job.
type TaskHandle struct {
	TaskID    string    `json:"taskId"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskError describes why a task ended in a failure status.
type TaskError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ProviderTask is one raw status report from a provider adapter, before
// normalization.
type ProviderTask struct {
	ID              string
	RawStatus       string
	Progress        int
	ResultURL       string
	ThumbnailURL    string
	ErrorCode       string
	ErrorMessage    string
	ErrorSuggestion string
}

// Snapshot is the normalized view of a task at one point in time.
type Snapshot struct {
	TaskID       string     `json:"taskId"`
	Provider     string     `json:"provider"`
	Status       Status     `json:"status"`
	RawStatus    string     `json:"rawStatus,omitempty"`
	Progress     int        `json:"progress"`
	ResultURL    string     `json:"resultUrl,omitempty"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	Error        *TaskError `json:"error,omitempty"`
	PolledAt     time.Time  `json:"polledAt"`
	// Unrecognized is set when the raw status was not in the provider's table.
	Unrecognized bool `json:"-"`
}

// PublicStatus is the caller-visible status: processing, succeeded or failed.
func (s *Snapshot) PublicStatus() string {
	return s.Status.Public()
}

func (s *Snapshot) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Task tracks one job across polls and enforces the lifecycle invariants:
// statuses only move forward and a terminal status never changes.
type Task struct {
	ID           string
	Provider     string
	Status       Status
	RawStatus    string
	ResultURL    string
	ThumbnailURL string
	Progress     int
	Error        *TaskError
	CreatedAt    time.Time
	LastPolledAt time.Time
}

func NewTask(handle TaskHandle) *Task {
	return &Task{
		ID:        handle.TaskID,
		Provider:  handle.Provider,
		Status:    StatusQueued,
		CreatedAt: handle.CreatedAt,
	}
}

// Apply folds a normalized snapshot into the task and reports whether the task
// changed. Regressions and reports after a terminal status are ignored.
func (t *Task) Apply(s *Snapshot) bool {
	t.LastPolledAt = s.PolledAt
	if t.Status.IsTerminal() {
		return false
	}
	if s.Status.rank() < t.Status.rank() {
		return false
	}
	changed := s.Status != t.Status || s.Progress != t.Progress
	t.Status = s.Status
	t.RawStatus = s.RawStatus
	if s.Progress > t.Progress {
		t.Progress = s.Progress
	}
	if s.Status == StatusSucceeded {
		t.ResultURL = s.ResultURL
		t.ThumbnailURL = s.ThumbnailURL
		t.Error = nil
	}
	if s.Status.IsFailure() {
		t.Error = s.Error
	}
	return changed
}

// Snapshot renders the task's current state.
func (t *Task) Snapshot() *Snapshot {
	s := &Snapshot{
		TaskID:    t.ID,
		Provider:  t.Provider,
		Status:    t.Status,
		RawStatus: t.RawStatus,
		Progress:  t.Progress,
		Error:     t.Error,
		PolledAt:  t.LastPolledAt,
	}
	if t.Status == StatusSucceeded {
		s.ResultURL = t.ResultURL
		s.ThumbnailURL = t.ThumbnailURL
	}
	return s
}

// ValidResultURL reports whether raw is an absolute http(s) URL with a host.
func ValidResultURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
