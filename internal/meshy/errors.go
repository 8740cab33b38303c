package meshy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"virtufit-backend/internal/relay"
)

const traceHeader = "X-Request-Id"

type statusInfo struct {
	message    string
	suggestion string
}

// knownStatuses translates Meshy HTTP error statuses into caller-facing text.
var knownStatuses = map[int]statusInfo{
	http.StatusBadRequest: {
		message:    "Meshy rejected the request as invalid",
		suggestion: "Check that the image is a valid JPEG, PNG or WEBP file.",
	},
	http.StatusUnauthorized: {
		message:    "Authentication failed: the Meshy API key was rejected",
		suggestion: "Check that MESHY_API_KEY is valid.",
	},
	http.StatusPaymentRequired: {
		message:    "The Meshy account has insufficient credit",
		suggestion: "Top up the Meshy account balance.",
	},
	http.StatusForbidden: {
		message:    "The Meshy API key is not allowed to use this feature",
		suggestion: "Check the Meshy plan and API key permissions.",
	},
	http.StatusNotFound: {
		message:    "Task not found",
		suggestion: "Check the task id. Tasks belong to the API key that created them.",
	},
	http.StatusUnprocessableEntity: {
		message:    "Meshy could not process the image",
		suggestion: "Try a different photo with a single, clearly visible subject.",
	},
	http.StatusTooManyRequests: {
		message:    "Meshy rate limit exceeded",
		suggestion: "Wait a few seconds before submitting another image.",
	},
}

func rejectionFromResponse(httpStatus int, body []byte, traceID string) *relay.Error {
	var eb struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &eb)

	e := &relay.Error{
		Kind:       relay.KindProviderRejection,
		Provider:   providerName,
		Code:       strconv.Itoa(httpStatus),
		TraceID:    traceID,
		HTTPStatus: httpStatus,
	}

	if info, ok := knownStatuses[httpStatus]; ok {
		e.Message = info.message
		e.Suggestion = info.suggestion
	} else if httpStatus >= http.StatusInternalServerError {
		e.Message = "Meshy is temporarily unavailable"
		e.Suggestion = "Retry the request in a moment."
	} else if eb.Message != "" {
		e.Message = eb.Message
	} else {
		e.Message = "unexpected response: status " + strconv.Itoa(httpStatus)
	}

	if eb.Message != "" && eb.Message != e.Message {
		e.Err = fmt.Errorf("meshy: %s", eb.Message)
	} else if eb.Message == "" && len(body) > 0 {
		e.Err = fmt.Errorf("meshy: %s", truncate(body, 512))
	}
	return e
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
