package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/anomaly.report/internal/httputil"
	"github.com/banshee-data/anomaly.report/internal/traffic"
	"github.com/banshee-data/anomaly.report/internal/visualiser"
)

// AttachDebugRoutes mounts the k-distance chart on the tsweb debug page.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("kdistance", "k-distance curve for a region (start, end, bbox, dataType)", http.HandlerFunc(s.handleKDistance))
}

// requestFromQuery builds an auto-eps detection request from
// ?start=&end=&bbox=minLon,minLat,maxLon,maxLat&dataType=[&minNeighbors=].
func requestFromQuery(r *http.Request) (*AnomalyRequest, error) {
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid 'start': %v", traffic.ErrInvalidArgument, err)
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid 'end': %v", traffic.ErrInvalidArgument, err)
	}
	metric, err := traffic.ParseMetric(q.Get("dataType"))
	if err != nil {
		return nil, err
	}

	parts := strings.Split(q.Get("bbox"), ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: 'bbox' must be minLon,minLat,maxLon,maxLat", traffic.ErrInvalidArgument)
	}
	var b [4]float64
	for i, p := range parts {
		if b[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return nil, fmt.Errorf("%w: invalid 'bbox': %v", traffic.ErrInvalidArgument, err)
		}
	}

	eps := 0.0
	req := &AnomalyRequest{
		Start:    start,
		End:      end,
		DataType: &metric,
		Eps:      &eps,
		Polygon:  [][2]float64{{b[0], b[1]}, {b[2], b[1]}, {b[2], b[3]}, {b[0], b[3]}},
	}
	if mn := q.Get("minNeighbors"); mn != "" {
		n, err := strconv.Atoi(mn)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid 'minNeighbors'", traffic.ErrInvalidArgument)
		}
		req.MinNeighbors = &n
	}
	return req, nil
}

func (s *Server) handleKDistance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	req, err := requestFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, p, err := s.detect(r, req)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Radius == nil {
		httputil.NotFound(w, fmt.Sprintf("%d outliers is too few to select a radius with minNeighbors %d", res.Outliers, p.MinNeighbors))
		return
	}

	var buf bytes.Buffer
	subtitle := fmt.Sprintf("%s %s to %s, %d outliers, %d clusters",
		p.Metric, req.Start.UTC().Format(time.RFC3339), req.End.UTC().Format(time.RFC3339), res.Outliers, res.Clusters)
	if err := visualiser.KDistanceChart(&buf, res.Radius, subtitle); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
