package handlers

import (
	"net/http"

	"github.com/diewo77/garage-records/httpx"
	"github.com/diewo77/garage-records/internal/remote"
	"github.com/diewo77/garage-records/internal/services"
)

type HealthHandler struct {
	coord *services.Coordinator
}

func NewHealthHandler(coord *services.Coordinator) *HealthHandler {
	return &HealthHandler{coord: coord}
}

// Get reports the mode, the remote connection and the record counts.
// "mongodb" keeps the historical connected/disconnected flag.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.coord.Status(r.Context())
	if err != nil {
		httpx.JSON(w, http.StatusInternalServerError, map[string]any{
			"status": "ERROR",
			"error":  err.Error(),
			"mode":   st.Mode,
			"remote": st.Remote,
		})
		return
	}
	flag := "disconnected"
	switch {
	case !h.coord.Connection().Configured():
		flag = "disabled"
	case st.Remote.State == remote.StateConnected:
		flag = "connected"
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":  "OK",
		"mode":    st.Mode,
		"mongodb": flag,
		"remote":  st.Remote,
		"source":  st.Source,
		"counts":  st.Counts,
		"file":    st.File,
	})
}
