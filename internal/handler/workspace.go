package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cartwise/internal/shopping"
)

type WorkspaceHandler struct {
	svc    *shopping.Service
	logger *slog.Logger
}

func NewWorkspaceHandler(svc *shopping.Service, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{svc: svc, logger: logger}
}

type workspaceRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.Workspaces(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err, "failed to list workspaces")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req workspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ws, err := h.svc.CreateWorkspace(r.Context(), req.Name, req.Currency)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to create workspace")
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	ws, err := h.svc.Workspace(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to get workspace")
		return
	}
	if ws == nil {
		writeMessage(w, http.StatusNotFound, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, ws)
}
