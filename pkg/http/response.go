package tlhttp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tasklane/tasklane/internal/model"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WriteJSON writes data in a success envelope.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	WriteEnvelope(w, statusCode, Envelope{Status: StatusSuccess, Data: data})
}

// WriteMessage writes a success envelope carrying only a message.
func WriteMessage(w http.ResponseWriter, statusCode int, message string) {
	WriteEnvelope(w, statusCode, Envelope{Status: StatusSuccess, Message: message})
}

// WriteFail writes a client error with the given status and message.
func WriteFail(w http.ResponseWriter, statusCode int, message string) {
	status := StatusFail
	if statusCode >= http.StatusInternalServerError {
		status = StatusError
	}
	WriteEnvelope(w, statusCode, Envelope{Status: status, Message: message})
}

// WriteError reports err to the client. Errors that are not *model.Error,
// and internal ones, are logged and replaced with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var e *model.Error
	if !errors.As(err, &e) || e.Kind == model.ErrorKindInternal {
		log.Printf("Error handling %s %s: %v\n", r.Method, r.URL.Path, err)
		WriteFail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if e.Err != nil {
		log.Printf("Error handling %s %s: %v\n", r.Method, r.URL.Path, e.Err)
	}
	WriteFail(w, e.StatusCode(), e.Message)
}

// WriteEnvelope writes env as the JSON response body.
func WriteEnvelope(w http.ResponseWriter, statusCode int, env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Printf("Error encoding response: %v\n", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	w.Write(b)
}
