package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diewo77/garage-records/httpx"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/services"
)

// RecordHandler upserts and deletes single records. The kind comes from the {kind}
// route parameter ("clients", "quotes", "invoices").
type RecordHandler struct {
	coord  *services.Coordinator
	strict bool
}

func NewRecordHandler(coord *services.Coordinator, strict bool) *RecordHandler {
	return &RecordHandler{coord: coord, strict: strict}
}

func routeKind(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.Fail(w, err)
		return "", false
	}
	return kind, true
}

// Upsert stores the body and returns the stored record.
func (h *RecordHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	kind, ok := routeKind(w, r)
	if !ok {
		return
	}
	body, ok := httpx.ReadBody(w, r)
	if !ok {
		return
	}
	rec, err := models.DecodeRecord(kind, body, h.strict)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	stored, err := h.coord.UpsertOne(r.Context(), rec)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stored)
}

// Delete removes the record named by {id}.
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := routeKind(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid id", map[string]string{"id": "must_be_positive_integer"})
		return
	}
	deleted, err := h.coord.DeleteOne(r.Context(), kind, id)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	msg := fmt.Sprintf("%s %d deleted", kind, id)
	if !deleted {
		msg = fmt.Sprintf("%s %d not found, nothing deleted", kind, id)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
		"message": msg,
	})
}
