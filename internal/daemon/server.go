package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/wardenhq/warden/types"
)

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Health())
}

// statusResponse is the operator view of the governance state
type statusResponse struct {
	Halt types.HaltStatus `json:"halt"`
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Halt: d.core.Status()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
