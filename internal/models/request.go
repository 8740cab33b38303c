package models

// GenerateRequest is the JSON body of POST /generate-model. Either an image
// (data URL or bare base64 with mimeType), an imageUrl, or a taskId to resume.
type GenerateRequest struct {
	Image        string `json:"image,omitempty" example:"data:image/png;base64,iVBORw0KGgo..."`
	MimeType     string `json:"mimeType,omitempty" example:"image/png"`
	ImageURL     string `json:"imageUrl,omitempty" example:"https://example.com/shirt.jpg"`
	ModelVersion string `json:"modelVersion,omitempty" example:"v2.5-20250123"`
	TaskID       string `json:"taskId,omitempty" example:"1ec04ced-4b87-44f6-a296-beee80777941"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	TraceID    string `json:"traceId,omitempty"`
	TaskID     string `json:"taskId,omitempty"`
}
