package respond

import (
	"encoding/json"
	"net/http"
)

// Kind - машиночитаемый класс ошибки в теле ответа.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindUnauthenticated   Kind = "UNAUTHENTICATED"
	KindBoundaryViolation Kind = "PROJECT_BOUNDARY_VIOLATION"
	KindProjectNotFound   Kind = "PROJECT_NOT_FOUND"
	KindTaskNotFound      Kind = "TASK_NOT_FOUND"
	KindUpdateConflict    Kind = "UPDATE_CONFLICT"
	KindInternal          Kind = "INTERNAL_ERROR"
)

// ErrorBody - единый формат ошибки API. Success всегда false.
type ErrorBody struct {
	Success bool        `json:"success"`
	Error   Kind        `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}


func Error(w http.ResponseWriter, r *http.Request, code int, kind Kind, message string) {
	JSON(w, r, code, ErrorBody{Error: kind, Message: message})
}

func ErrorDetails(w http.ResponseWriter, r *http.Request, code int, kind Kind, message string, details interface{}) {
	JSON(w, r, code, ErrorBody{Error: kind, Message: message, Details: details})
}
