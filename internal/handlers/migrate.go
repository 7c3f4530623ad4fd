package handlers

import (
	"bytes"
	"net/http"

	"github.com/diewo77/garage-records/httpx"
	"github.com/diewo77/garage-records/internal/models"
	"github.com/diewo77/garage-records/internal/services"
)

// MigrateHandler runs the one-shot import.
type MigrateHandler struct {
	coord *services.Coordinator
}

func NewMigrateHandler(coord *services.Coordinator) *MigrateHandler {
	return &MigrateHandler{coord: coord}
}

// Import inserts the records of the body, or of the data file when the body is empty.
func (h *MigrateHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, ok := httpx.ReadBody(w, r)
	if !ok {
		return
	}
	var src *models.Dataset
	if len(bytes.TrimSpace(body)) > 0 {
		ds, err := models.DecodeDataset(body)
		if err != nil {
			httpx.Fail(w, err)
			return
		}
		src = &ds
	}
	res, err := h.coord.Import(r.Context(), src)
	if err != nil {
		httpx.Fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"target":  res.Target,
		"results": res.Results,
		"records": res.Records,
	})
}
