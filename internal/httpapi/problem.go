package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Tenerife-Q/yuanjing-core/internal/model"
)

// statusForKind maps a CoreError.Kind to an HTTP status code (spec.md
// §7), generalizing scrapi/httpserver's ad hoc writeProblem call sites
// into a single table driven by the orchestrator's error kind.
func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.BadRequest:
		return http.StatusBadRequest
	case model.Unauthorized:
		return http.StatusUnauthorized
	case model.Unprocessable:
		return http.StatusUnprocessableEntity
	case model.NotFound:
		return http.StatusNotFound
	case model.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeProblem emits an application/problem+json body, generalizing
// scrapi/httpserver.writeProblem.
func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", mediaTypeProblemJSON)
	w.WriteHeader(status)

	payload := map[string]any{
		"type":   "about:blank",
		"title":  title,
		"detail": detail,
		"status": status,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write(data)
}

// writeCoreError maps err to a problem+json response. If err is not a
// *model.CoreError it is reported as Internal.
func writeCoreError(w http.ResponseWriter, err error) {
	var coreErr *model.CoreError
	if errors.As(err, &coreErr) {
		writeProblem(w, statusForKind(coreErr.Kind), string(coreErr.Kind), coreErr.Error())
		return
	}
	writeProblem(w, http.StatusInternalServerError, string(model.Internal), err.Error())
}

const mediaTypeProblemJSON = "application/problem+json"
