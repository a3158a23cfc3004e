package api

import (
	"fmt"
	"net/http"

	"github.com/banshee-data/anomaly.report/internal/httputil"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// handleObservations ingests a JSON array of observations.
func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var obs []traffic.Observation
	if err := httputil.DecodeJSON(w, r, &obs); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	for i, o := range obs {
		if o.Timestamp.IsZero() {
			httputil.BadRequest(w, fmt.Sprintf("observation %d: timestamp is required", i))
			return
		}
		if err := s.grid.Check(o.CellID); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("observation %d: %v", i, err))
			return
		}
	}

	n, err := s.db.RecordObservations(r.Context(), obs)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.AddIngested(n)
	httputil.WriteJSONOK(w, map[string]int{"written": n})
}
