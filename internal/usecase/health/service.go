package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckDisabled marks a component that is not configured.
	CheckDisabled CheckResult = "disabled"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	index IndexPinger
	model ModelChecker
}

// New creates a Service. index is nil when no vector store is configured.
func New(index IndexPinger, model ModelChecker) *Service {
	return &Service{index: index, model: model}
}

// Check runs health checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 2)

	if s.index == nil {
		checks["index"] = CheckDisabled
	} else {
		checks["index"] = result(s.index.Ping(ctx))
	}

	if s.model == nil {
		checks["model"] = CheckDisabled
	} else {
		checks["model"] = result(s.model.HealthCheck(ctx))
	}

	failed, active := 0, 0
	for _, v := range checks {
		switch v {
		case CheckError:
			failed++
			active++
		case CheckOK:
			active++
		}
	}

	status := Healthy
	switch {
	case failed > 0 && failed == active:
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
