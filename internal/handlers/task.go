package handlers

import (
	"net/http"

	"todolist/internal/models"
)

type todoPayload struct {
	Text     string `json:"text"`
	Todo     string `json:"todo"`
	Priority string `json:"priority"`
}

// text prefers "text" and falls back to the older "todo" key.
func (p todoPayload) text() string {
	if p.Text != "" {
		return p.Text
	}
	return p.Todo
}

type createResponse struct {
	Result *models.Task `json:"result"`
	Msg    string       `json:"msg"`
	Error  any          `json:"error"`
}

type statusResponse struct {
	OK     int          `json:"ok"`
	Result *models.Task `json:"result"`
}

type deleteResponse struct {
	Msg    string       `json:"msg"`
	Result *models.Task `json:"result"`
}

type reorderResponse struct {
	Msg     string   `json:"msg"`
	Updated int      `json:"updated"`
	Missing []string `json:"missing"`
}

// ListTodos returns every task ordered by position.
func (h *Handlers) ListTodos(w http.ResponseWriter, r *http.Request) {
	list, err := h.tasks.List(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, list)
}

// CreateTodo appends a new task to the end of the list.
func (h *Handlers) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var payload todoPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondDecodeError(w, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), payload.text(), payload.Priority)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, createResponse{
		Result: task,
		Msg:    "Successfully added task!",
	})
}

// UpdateTodo replaces a task's text and priority.
func (h *Handlers) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	var payload todoPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondDecodeError(w, err)
		return
	}

	task, err := h.tasks.UpdateContent(r.Context(), parseID(r, "id"), payload.text(), payload.Priority)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, task)
}

// UpdateStatus replaces a task's status.
func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status *string `json:"status"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		respondDecodeError(w, err)
		return
	}
	if payload.Status == nil {
		respondFieldError(w, http.StatusBadRequest, "status is required", "status")
		return
	}

	task, err := h.tasks.UpdateStatus(r.Context(), parseID(r, "id"), *payload.Status)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, statusResponse{OK: 1, Result: task})
}

// DeleteTodo deletes a task.
func (h *Handlers) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Delete(r.Context(), parseID(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, deleteResponse{
		Msg:    "Successfully deleted task!",
		Result: task,
	})
}

// ReorderTodos assigns positions 1..n following the submitted order.
func (h *Handlers) ReorderTodos(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ReorderedTodos *[]struct {
			ID string `json:"_id"`
		} `json:"reorderedTodos"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		respondDecodeError(w, err)
		return
	}
	if payload.ReorderedTodos == nil {
		respondFieldError(w, http.StatusBadRequest, "reorderedTodos is required", "reorderedTodos")
		return
	}

	ids := make([]string, 0, len(*payload.ReorderedTodos))
	for _, todo := range *payload.ReorderedTodos {
		ids = append(ids, todo.ID)
	}

	result, err := h.tasks.Reorder(r.Context(), ids)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, reorderResponse{
		Msg:     "Successfully reordered tasks!",
		Updated: result.Updated,
		Missing: result.Missing,
	})
}
