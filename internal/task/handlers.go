package task

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/database"
	"github.com/tasklane/tasklane/internal/model"
	tlhttp "github.com/tasklane/tasklane/pkg/http"
)

// SetupRoutes configures the task routes. Every route requires the caller
// to pass authenticated.
func SetupRoutes(r *mux.Router, svc *Service, authenticated mux.MiddlewareFunc) {
	h := &handler{svc: svc}

	s := r.PathPrefix("/tasks").Subrouter()
	s.Use(authenticated)
	s.HandleFunc("", h.create).Methods(http.MethodPost)
	s.HandleFunc("", h.list).Methods(http.MethodGet)
	s.HandleFunc("/reorder", h.reorder).Methods(http.MethodPatch)
	s.HandleFunc("/{id}", h.update).Methods(http.MethodPut)
	s.HandleFunc("/{id}", h.delete).Methods(http.MethodDelete)
	s.HandleFunc("/{id}/status", h.updateStatus).Methods(http.MethodPatch)
}

type handler struct {
	svc *Service
}

// requester returns the authenticated user's ID.
func requester(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		tlhttp.WriteError(w, r, model.ErrUnauthorized("no token provided"))
		return "", false
	}
	return user.ID, true
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	var input struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := tlhttp.DecodeJSON(w, r, &input, false); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	task, err := h.svc.Create(ctx, userID, input.Title, input.Description)
	if err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	tlhttp.WriteJSON(w, http.StatusCreated, map[string]interface{}{"task": task})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	tasks, err := h.svc.ListByOwner(ctx, userID)
	if err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	tlhttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	// Fields other than title, description and status are ignored.
	var update model.TaskUpdate
	if err := tlhttp.DecodeJSON(w, r, &update, true); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	task, err := h.svc.Update(ctx, mux.Vars(r)["id"], userID, update)
	if err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	tlhttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"task": task})
}

func (h *handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	var input struct {
		Status *model.TaskStatus `json:"status"`
	}
	if err := tlhttp.DecodeJSON(w, r, &input, false); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	if input.Status == nil {
		tlhttp.WriteError(w, r, model.ErrValidation("status must be provided"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	task, err := h.svc.UpdateStatus(ctx, mux.Vars(r)["id"], userID, *input.Status)
	if err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	tlhttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"task": task})
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	if err := h.svc.Delete(ctx, mux.Vars(r)["id"], userID); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeOrders accepts either {"tasks": [...]} or a bare array.
func decodeOrders(w http.ResponseWriter, r *http.Request) ([]model.TaskOrder, error) {
	var raw json.RawMessage
	if err := tlhttp.DecodeJSON(w, r, &raw, false); err != nil {
		return nil, err
	}

	var orders []model.TaskOrder
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &orders); err != nil {
			return nil, model.ErrValidation("body must be a list of {taskId, order}")
		}
		return orders, nil
	}

	var input struct {
		Tasks []model.TaskOrder `json:"tasks"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		return nil, model.ErrValidation("body must contain tasks: a list of {taskId, order}")
	}
	if input.Tasks == nil {
		return nil, model.ErrValidation("tasks must be provided")
	}
	return input.Tasks, nil
}

func (h *handler) reorder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requester(w, r)
	if !ok {
		return
	}

	orders, err := decodeOrders(w, r)
	if err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	if err := h.svc.ReorderBatch(ctx, userID, orders); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	tlhttp.WriteMessage(w, http.StatusOK, "tasks reordered")
}
