// Package response writes the JSON envelopes every API route returns.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/pkg/util"
)

type Success struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success{Success: true, Data: data})
}

func Created(w http.ResponseWriter, data any, message string) {
	JSON(w, http.StatusCreated, Success{Success: true, Data: data, Message: message})
}

// Message writes a 200 envelope with only a message.
func Message(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, Success{Success: true, Message: message})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes the failure envelope for err. Internal errors are logged with
// their cause and reach the client only as a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.As(err)
	if ae.Kind == apperr.KindInternal {
		util.LoggerFrom(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	JSON(w, ae.Status(), Failure{
		Error:   ae.Kind.Label(),
		Message: ae.Message,
		Details: ae.Details,
	})
}
