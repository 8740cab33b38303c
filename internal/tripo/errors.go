package tripo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"virtufit-backend/internal/relay"
)

const traceHeader = "X-Tripo-Trace-ID"

type codeInfo struct {
	message    string
	suggestion string
	retryable  bool
}

// knownCodes translates Tripo error codes into caller-facing text.
var knownCodes = map[int]codeInfo{
	1000: {
		message:    "Tripo3D had an internal error",
		suggestion: "Retry the request in a moment.",
		retryable:  true,
	},
	1001: {
		message:    "Tripo3D had a fatal server error",
		suggestion: "Retry later. If it persists, contact Tripo3D support with the trace id.",
	},
	1002: {
		message:    "Authentication failed: the API key was rejected or the account has no credit",
		suggestion: "Check that TRIPO_API_KEY is valid and that the Tripo3D account has credit remaining.",
	},
	2000: {
		message:    "Tripo3D rate limit exceeded",
		suggestion: "Wait a few seconds before submitting another image.",
		retryable:  true,
	},
	2001: {
		message:    "Task not found",
		suggestion: "Check the task id. Tasks belong to the API key that created them.",
	},
	2002: {
		message:    "Unsupported task type",
		suggestion: "Use image_to_model.",
	},
	2003: {
		message:    "The uploaded image is empty",
		suggestion: "Upload a non-empty JPEG, PNG or WEBP image.",
	},
	2004: {
		message:    "Unsupported image file type",
		suggestion: "Upload a JPEG, PNG or WEBP image.",
	},
	2006: {
		message:    "The referenced original task is invalid",
		suggestion: "Start a new generation instead of reusing the task.",
	},
	2008: {
		message:    "The image was rejected by the content policy",
		suggestion: "Use a different photo.",
	},
	2010: {
		message:    "Not enough credit for this generation",
		suggestion: "Top up the Tripo3D account balance.",
	},
	2015: {
		message:    "The requested model version is deprecated",
		suggestion: "Use a current model version or leave it unset.",
	},
	2018: {
		message:    "The model is too complex to generate",
		suggestion: "Try a simpler photo with a single, clearly visible subject.",
	},
}

type errorBody struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// rejectionFromBody builds the relay error for a non-success response.
func rejectionFromBody(httpStatus int, body []byte, traceID string) *relay.Error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || (eb.Code == 0 && eb.Message == "") {
		msg := fmt.Sprintf("unexpected response: status %d", httpStatus)
		return &relay.Error{
			Kind:       relay.KindProviderRejection,
			Provider:   providerName,
			Code:       strconv.Itoa(httpStatus),
			Message:    msg,
			TraceID:    traceID,
			HTTPStatus: httpStatus,
			Err:        fmt.Errorf("%s, body: %s", msg, truncate(body, 512)),
		}
	}
	return rejection(httpStatus, eb, traceID)
}

func rejection(httpStatus int, eb errorBody, traceID string) *relay.Error {
	if httpStatus == 0 {
		httpStatus = http.StatusOK
	}
	code := strconv.Itoa(eb.Code)
	info, ok := knownCodes[eb.Code]
	if !ok {
		msg := eb.Message
		if msg == "" {
			msg = fmt.Sprintf("Tripo3D returned error code %d", eb.Code)
		}
		return &relay.Error{
			Kind:       relay.KindProviderRejection,
			Provider:   providerName,
			Code:       code,
			Message:    msg,
			Suggestion: eb.Suggestion,
			TraceID:    traceID,
			HTTPStatus: httpStatus,
		}
	}

	e := &relay.Error{
		Kind:       relay.KindProviderRejection,
		Provider:   providerName,
		Code:       code,
		Message:    info.message,
		Suggestion: info.suggestion,
		TraceID:    traceID,
		HTTPStatus: httpStatus,
		Transient:  info.retryable,
	}
	if eb.Message != "" {
		e.Err = fmt.Errorf("tripo: %s", eb.Message)
	}
	return e
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
