package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/garage-records/httpx"
	"github.com/diewo77/garage-records/internal/apperr"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/services"
)

// DataHandler serves the whole dataset.
type DataHandler struct {
	coord *services.Coordinator
}

func NewDataHandler(coord *services.Coordinator) *DataHandler {
	return &DataHandler{coord: coord}
}

// Get returns {clients, quotes, invoices}.
func (h *DataHandler) Get(w http.ResponseWriter, r *http.Request) {
	ds, err := h.coord.LoadAll(r.Context())
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ds)
}

// Replace swaps the whole dataset for the request body.
func (h *DataHandler) Replace(w http.ResponseWriter, r *http.Request) {
	body, ok := httpx.ReadBody(w, r)
	if !ok {
		return
	}
	ds, err := models.DecodeDataset(body)
	if err != nil {
		httpx.Fail(w, err)
		return
	}

	res, err := h.coord.ReplaceAll(r.Context(), ds)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			httpx.Fail(w, err)
			return
		}
		httpx.JSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   apperr.Detail(err),
			"kind":    apperr.KindOf(err),
			"storage": map[string]any{"file": res.File, "mongo": res.Mongo},
		})
		return
	}

	msg := "data saved"
	if !res.Mongo.Success && !res.Mongo.Skipped {
		msg = "data saved to file; remote store write failed"
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
		"storage": map[string]any{"file": res.File, "mongo": res.Mongo},
		"saved":   res.Saved,
	})
}
