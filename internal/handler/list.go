package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cartwise/internal/model"
	"github.com/dukerupert/cartwise/internal/shopping"
)

type ListHandler struct {
	svc    *shopping.Service
	logger *slog.Logger
}

func NewListHandler(svc *shopping.Service, logger *slog.Logger) *ListHandler {
	return &ListHandler{svc: svc, logger: logger}
}

type addItemRequest struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
	Notes    string `json:"notes"`
	Aisle    string `json:"aisle"`
}

type quickAddRequest struct {
	Name string `json:"name"`
}

type updateItemRequest struct {
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type checkRequest struct {
	Checked *bool `json:"checked"`
}

// itemRef resolves the {ws}, {aisle} and {item} path values.
func itemRef(w http.ResponseWriter, r *http.Request) (ws, aisle, item int64, ok bool) {
	if ws, ok = pathID(r, "ws"); !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	if aisle, ok = pathID(r, "aisle"); !ok {
		writeMessage(w, http.StatusBadRequest, "invalid aisle id")
		return
	}
	if item, ok = pathID(r, "item"); !ok {
		writeMessage(w, http.StatusBadRequest, "invalid item id")
		return
	}
	return
}

func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	list, err := h.svc.GetList(r.Context(), ws)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to load list")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	item, err := h.svc.AddItem(r.Context(), ws, model.NewItem{Name: req.Name, Quantity: qty, Notes: req.Notes}, req.Aisle)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to add item")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *ListHandler) QuickAdd(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	var req quickAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	item, err := h.svc.QuickAdd(r.Context(), ws, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to add item")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *ListHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ws, aisle, item, ok := itemRef(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	found, err := h.svc.UpdateItem(r.Context(), ws, aisle, item, req.Quantity, req.Notes)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to update item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"found": found})
}

// Check sets the checked flag; an empty body checks the item.
func (h *ListHandler) Check(w http.ResponseWriter, r *http.Request) {
	ws, aisle, item, ok := itemRef(w, r)
	if !ok {
		return
	}
	var req checkRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	checked := true
	if req.Checked != nil {
		checked = *req.Checked
	}

	found, err := h.svc.SetChecked(r.Context(), ws, aisle, item, checked)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to check item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"found": found, "checked": checked})
}

func (h *ListHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ws, aisle, item, ok := itemRef(w, r)
	if !ok {
		return
	}
	found, err := h.svc.RemoveItem(r.Context(), ws, aisle, item)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to remove item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"found": found})
}
