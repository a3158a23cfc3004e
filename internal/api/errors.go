package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/anomaly.report/internal/db"
	"github.com/banshee-data/anomaly.report/internal/geo"
	"github.com/banshee-data/anomaly.report/internal/httputil"
	"github.com/banshee-data/anomaly.report/internal/report"
	"github.com/banshee-data/anomaly.report/internal/traffic"
)

// statusFor maps pipeline and store errors to HTTP status codes. Footprint
// assembly failures are always 500, whatever they wrap.
func statusFor(err error) int {
	var asmErr *report.AssemblyError
	switch {
	case errors.As(err, &asmErr):
		return http.StatusInternalServerError
	case errors.Is(err, traffic.ErrInvalidArgument), errors.Is(err, geo.ErrInvalidCell):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	var asmErr *report.AssemblyError
	if errors.As(err, &asmErr) {
		msg = fmt.Sprintf("failed to build footprint: %v", asmErr)
	}
	if status >= http.StatusInternalServerError {
		logf("request failed: %v", err)
	}
	httputil.WriteJSONError(w, status, msg)
}
