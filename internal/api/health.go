package api

import (
	"context"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// its context is cancelled.
const checkTimeout = 5 * time.Second

// checker is a named readiness probe registered through [WithChecker].
// Typical checks ping the history store and the provider endpoints.
type checker struct {
	name  string
	check func(ctx context.Context) error
}

// healthResult is the JSON response body for the probe endpoints.
type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealthz is the liveness probe. A running process that can serve
// HTTP is considered alive.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

// handleReadyz is the readiness probe. It returns 200 only when every
// registered checker passes; each check runs under a [checkTimeout]
// deadline derived from the request context.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checkers))
	allOK := true

	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.check(ctx)
		cancel()

		if err != nil {
			checks[c.name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.name] = "ok"
		}
	}

	res := healthResult{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}
