package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/cartwise/internal/model"
	"github.com/dukerupert/cartwise/internal/shopping"
)

// maxReceiptBytes caps an uploaded receipt image.
const maxReceiptBytes = 10 << 20

type ShoppingHandler struct {
	svc    *shopping.Service
	logger *slog.Logger
}

func NewShoppingHandler(svc *shopping.Service, logger *slog.Logger) *ShoppingHandler {
	return &ShoppingHandler{svc: svc, logger: logger}
}

type purchaseView struct {
	model.Purchase
	Total decimal.Decimal `json:"total"`
}

func viewOf(p model.Purchase) purchaseView {
	return purchaseView{Purchase: p, Total: p.Total()}
}

func (h *ShoppingHandler) Finish(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	var req shopping.FinishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	out, err := h.svc.FinishShopping(r.Context(), ws, req)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to finish shopping")
		return
	}
	if !out.Archived {
		writeJSON(w, http.StatusOK, map[string]any{"archived": false})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"archived": true, "purchase": viewOf(*out.Purchase)})
}

func (h *ShoppingHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	history, err := h.svc.History(r.Context(), ws)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to list purchases")
		return
	}
	views := make([]purchaseView, 0, len(history))
	for _, p := range history {
		views = append(views, viewOf(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ShoppingHandler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid purchase id")
		return
	}
	p, err := h.svc.Purchase(r.Context(), ws, id)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to get purchase")
		return
	}
	if p == nil {
		writeMessage(w, http.StatusNotFound, "purchase not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*p))
}

// readImage accepts either a multipart form with an "image" file or the raw
// image as the request body.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		return data, mediaType, err
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), header.Header.Get("Content-Type"), nil
}

func (h *ShoppingHandler) imageOrFail(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	data, contentType, err := readImage(w, r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "receipt image too large")
			return nil, "", false
		}
		writeMessage(w, http.StatusBadRequest, "could not read receipt image")
		return nil, "", false
	}
	return data, strings.TrimSpace(contentType), true
}

// ReconcileReceipt enriches an archived purchase from a receipt image.
func (h *ShoppingHandler) ReconcileReceipt(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid purchase id")
		return
	}
	image, contentType, ok := h.imageOrFail(w, r)
	if !ok {
		return
	}

	p, err := h.svc.ReconcilePurchase(r.Context(), ws, id, image, contentType)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to reconcile purchase")
		return
	}
	if p == nil {
		writeMessage(w, http.StatusNotFound, "purchase not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*p))
}

// AnalyzeReceipt extracts a receipt image and compares it with the current
// list without changing anything.
func (h *ShoppingHandler) AnalyzeReceipt(w http.ResponseWriter, r *http.Request) {
	ws, ok := pathID(r, "ws")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid workspace id")
		return
	}
	image, contentType, ok := h.imageOrFail(w, r)
	if !ok {
		return
	}

	analysis, err := h.svc.AnalyzeReceipt(r.Context(), ws, image, contentType)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to analyze receipt")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
