// Package metrics holds the shared metric names and tag conventions.
package metrics

import (
	"time"

	obserrors "github.com/target/talentgate/internal/observability/errors"
	"github.com/target/talentgate/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// BackendCall captures one request to the marketplace backend.
type BackendCall struct {
	Method   string
	Route    string
	Status   int
	Duration time.Duration
	Err      error
}

// EmitBackendCall counts the call under backend.request and records its latency.
func EmitBackendCall(sink statsd.Sink, in BackendCall) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	}
	tags := map[string]string{
		"method": in.Method,
		"route":  in.Route,
		"result": result,
	}
	if in.Status > 0 {
		tags["status_class"] = statusClass(in.Status)
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("backend.request", 1, tags)
	if in.Duration > 0 {
		sink.Timing("backend.duration", in.Duration, CloneTags(tags))
	}
}

// AuthOutcome counts one auth flow under auth.request, tagged with the flow name and
// outcome ("ok" or "error").
func AuthOutcome(sink statsd.Sink, op string, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"op": op, "outcome": "ok"}
	if err != nil {
		tags["outcome"] = "error"
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count("auth.request", 1, tags)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
