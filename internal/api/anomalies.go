package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/banshee-data/anomaly.report/internal/anomaly"
	"github.com/banshee-data/anomaly.report/internal/db"
	"github.com/banshee-data/anomaly.report/internal/geo"
	"github.com/banshee-data/anomaly.report/internal/httputil"
	"github.com/banshee-data/anomaly.report/internal/report"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// AnomalyRequest is the body of POST /api/anomalies. Optional fields
// override the server's tuning config for this run only.
type AnomalyRequest struct {
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Polygon       [][2]float64    `json:"polygon"`
	DataType      *traffic.Metric `json:"dataType"`
	Threshold     *float64        `json:"threshold,omitempty"`
	MinNeighbors  *int            `json:"minNeighbors,omitempty"`
	Eps           *float64        `json:"eps,omitempty"`
	MinCoverage   *float64        `json:"minCoverage,omitempty"`
	MetersPerHour *float64        `json:"metersPerHour,omitempty"`
	IncludeNoise  *bool           `json:"includeNoise,omitempty"`
	Save          bool            `json:"save,omitempty"`
	Name          string          `json:"name,omitempty"`
}

// AnomalyResponse reports the run summary and the GeoJSON features.
type AnomalyResponse struct {
	ReportID     string                     `json:"report_id,omitempty"`
	DataType     traffic.Metric             `json:"dataType"`
	Eps          float64                    `json:"eps"`
	CellsKept    int                        `json:"cellsKept"`
	CellsDropped int                        `json:"cellsDropped"`
	Outliers     int                        `json:"outliers"`
	Clusters     int                        `json:"clusters"`
	Noise        int                        `json:"noise"`
	Features     *geojson.FeatureCollection `json:"features"`
}

// params merges the request overrides into the configured defaults.
func (s *Server) params(req *AnomalyRequest) anomaly.Params {
	p := s.tuning.Params(*req.DataType)
	if req.Threshold != nil {
		p.Threshold = *req.Threshold
	}
	if req.MinNeighbors != nil {
		p.MinNeighbors = *req.MinNeighbors
	}
	if req.Eps != nil {
		p.Eps = *req.Eps
	}
	if req.MinCoverage != nil {
		p.MinCoverage = *req.MinCoverage
	}
	if req.MetersPerHour != nil {
		p.MetersPerHour = *req.MetersPerHour
	}
	if req.IncludeNoise != nil {
		p.IncludeNoise = *req.IncludeNoise
	}
	return p
}

// window checks the request window against the configured maximum.
func (s *Server) window(start, end time.Time) (anomaly.Window, error) {
	if start.IsZero() || end.IsZero() {
		return anomaly.Window{}, fmt.Errorf("%w: start and end are required", traffic.ErrInvalidArgument)
	}
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return anomaly.Window{}, fmt.Errorf("%w: end %s precedes start %s", traffic.ErrInvalidArgument,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if limit := time.Duration(s.tuning.GetMaxWindowDays()) * 24 * time.Hour; end.Sub(start) > limit {
		return anomaly.Window{}, fmt.Errorf("%w: window longer than %d days", traffic.ErrInvalidArgument, s.tuning.GetMaxWindowDays())
	}
	return anomaly.Window{Start: start, End: end}, nil
}

// detect fetches and runs one request.
func (s *Server) detect(r *http.Request, req *AnomalyRequest) (*anomaly.Result, anomaly.Params, error) {
	if req.DataType == nil {
		return nil, anomaly.Params{}, fmt.Errorf("%w: dataType is required", traffic.ErrInvalidArgument)
	}
	w, err := s.window(req.Start, req.End)
	if err != nil {
		return nil, anomaly.Params{}, err
	}
	poly, err := geo.PolygonFromRing(req.Polygon)
	if err != nil {
		return nil, anomaly.Params{}, err
	}
	p := s.params(req)
	if err := p.Validate(); err != nil {
		return nil, p, err
	}

	obs, err := s.source.Fetch(r.Context(), poly, w.Start, w.End)
	if err != nil {
		return nil, p, err
	}
	res, err := s.detector.Run(obs, w, p)
	return res, p, err
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req AnomalyRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, p, err := s.detect(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := AnomalyResponse{
		DataType:     p.Metric,
		Eps:          res.Eps,
		CellsKept:    res.CellsKept,
		CellsDropped: res.CellsDropped,
		Outliers:     res.Outliers,
		Clusters:     res.Clusters,
		Noise:        res.Noise,
		Features:     report.FeatureCollection(res.Features),
	}

	if req.Save {
		params, err := json.Marshal(p)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to encode params: %v", err))
			return
		}
		rep := &db.Report{
			Name:     req.Name,
			Metric:   p.Metric,
			Start:    req.Start.UTC(),
			End:      req.End.UTC(),
			Eps:      res.Eps,
			Outliers: res.Outliers,
			Clusters: res.Clusters,
			Params:   params,
		}
		if err := s.db.SaveReport(r.Context(), rep, res.Features); err != nil {
			writeError(w, fmt.Errorf("save report: %w", err))
			return
		}
		resp.ReportID = rep.ID
		logf("saved report %s (%s, %d features)", rep.ID, p.Metric, len(res.Features))
	}

	httputil.WriteJSONOK(w, resp)
}
