package healthendpoint

import (
	"encoding/json"
	"net/http"
	"time"
)

type (
	ReadinessCheck struct {
		Name   string `json:"name"`
		Type   string `json:"type"`
		Status string `json:"status"`
	}
	readinessResponse struct {
		OverallStatus string           `json:"overall_status"`
		Checks        []ReadinessCheck `json:"checks"`
	}
	Checker func() ReadinessCheck
)

const (
	statusUp   = "UP"
	statusDown = "DOWN"
)

func readiness(checkers []Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		checks := make([]ReadinessCheck, 0, len(checkers))
		overallStatus := statusUp
		for _, checker := range checkers {
			check := checker()
			checks = append(checks, check)
			if check.Status == statusDown {
				overallStatus = statusDown
			}
		}
		response, err := json.Marshal(readinessResponse{OverallStatus: overallStatus, Checks: checks})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Internal error"}`))
			return
		}
		if overallStatus == statusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write(response)
	}
}

// SchedulerChecker reports DOWN until a tick has completed and whenever the
// last completed tick is older than maxAge.
func SchedulerChecker(name string, lastTick func() time.Time, maxAge time.Duration, now func() time.Time) Checker {
	return func() ReadinessCheck {
		status := statusUp
		last := lastTick()
		if last.IsZero() || now().Sub(last) > maxAge {
			status = statusDown
		}
		return ReadinessCheck{Name: name, Type: "scheduler", Status: status}
	}
}
