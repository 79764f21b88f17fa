// Package progress defines the event stream the core emits while converting
// and packaging. Any front end — CLI, HTTP/SSE bridge, test harness — can
// subscribe through the Reporter interface without the core depending on it.
package progress

import "log/slog"

// Kind discriminates progress events.
type Kind string

// Event kinds.
const (
	KindStarted  Kind = "started"
	KindFinished Kind = "finished"
	KindFailed   Kind = "failed"
	KindLog      Kind = "log"
)

// Event is one progress notification. Err is set only for KindFailed.
type Event struct {
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
	Err         string `json:"error,omitempty"`
}

// Reporter receives progress events.
type Reporter interface {
	Report(Event)
}

// Func adapts a plain function to Reporter.
type Func func(Event)

// Report implements Reporter.
func (f Func) Report(e Event) { f(e) }

// Started emits a started event. All helpers are nil-safe so callers never
// have to guard an optional reporter.
func Started(r Reporter, description string) {
	if r != nil {
		r.Report(Event{Kind: KindStarted, Description: description})
	}
}

// Finished emits a finished event.
func Finished(r Reporter, description string) {
	if r != nil {
		r.Report(Event{Kind: KindFinished, Description: description})
	}
}

// Failed emits a failed event.
func Failed(r Reporter, description string, err error) {
	e := Event{Kind: KindFailed, Description: description}
	if err != nil {
		e.Err = err.Error()
	}
	if r != nil {
		r.Report(e)
	}
}

// Log emits a log-line event.
func Log(r Reporter, message string) {
	if r != nil {
		r.Report(Event{Kind: KindLog, Description: message})
	}
}

// Slog returns a Reporter that mirrors events onto a structured logger,
// which is how the CLI front end renders progress lines.
func Slog(logger *slog.Logger) Reporter {
	return Func(func(e Event) {
		switch e.Kind {
		case KindFailed:
			logger.Error(e.Description, slog.String("error", e.Err))
		case KindLog:
			logger.Info(e.Description)
		default:
			logger.Info(e.Description, slog.String("phase", string(e.Kind)))
		}
	})
}

// Multi fans events out to several reporters.
func Multi(reporters ...Reporter) Reporter {
	return Func(func(e Event) {
		for _, r := range reporters {
			if r != nil {
				r.Report(e)
			}
		}
	})
}
