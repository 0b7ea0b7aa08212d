package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/repository"
	"github.com/sakif/recipe-api/internal/service"
)

// LabelHandler serves /recipe/tags or /recipe/ingredients, depending on the
// service it wraps. There is no create endpoint: labels are created by
// recipe writes.
type LabelHandler struct {
	labels *service.LabelService
	logger *slog.Logger
}

func NewLabelHandler(labels *service.LabelService, logger *slog.Logger) *LabelHandler {
	return &LabelHandler{labels: labels, logger: logger}
}

type labelUpdateRequest struct {
	Name *string `json:"name"`
}

// HandleList returns the caller's labels ordered by name, descending.
//
// HTTP: GET /recipe/tags?assigned_only=1
//
// With assigned_only=1 only labels attached to at least one recipe are
// returned, each once.
func (h *LabelHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	assigned, err := parseFlag("assigned_only", r.URL.Query().Get("assigned_only"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	labels, err := h.labels.List(r.Context(), userID, repository.LabelFilter{
		AssignedOnly: assigned,
		ListOptions:  opts,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toLabelResponses(labels))
}

// HandleGet returns one of the caller's labels.
func (h *LabelHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, string(h.labels.Kind()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	label, err := h.labels.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, labelResponse{ID: label.ID, Name: label.Name})
}

// HandleUpdate renames a label. PUT requires "name"; a PATCH without it
// changes nothing and returns the label as it is.
func (h *LabelHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, string(h.labels.Kind()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req labelUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if req.Name == nil {
		label, err := h.labels.Get(r.Context(), userID, id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if r.Method != http.MethodPatch {
			writeError(w, h.logger, apperror.ValidationFailed("name", "This field is required."))
			return
		}
		writeJSON(w, http.StatusOK, labelResponse{ID: label.ID, Name: label.Name})
		return
	}

	label, err := h.labels.Update(r.Context(), userID, id, *req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, labelResponse{ID: label.ID, Name: label.Name})
}

// HandleDelete removes one of the caller's labels → 204.
func (h *LabelHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := pathID(r, string(h.labels.Kind()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.labels.Delete(r.Context(), userID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
