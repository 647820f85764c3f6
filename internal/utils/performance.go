package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowThreshold is the duration above which a timed operation is logged at warn level.
const SlowThreshold = 10 * time.Second

// Timer measures the duration of one analytics operation
type Timer struct {
	start  time.Time
	name   string
	log    zerolog.Logger
	fields map[string]interface{}
}

// NewTimer starts a timer for the named operation
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start:  time.Now(),
		name:   name,
		log:    log,
		fields: make(map[string]interface{}),
	}
}

// With attaches a field to the final measurement log line.
func (t *Timer) With(key string, value interface{}) *Timer {
	t.fields[key] = value
	return t
}

// Stop logs the elapsed time and returns it
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)

	event := t.log.Debug()
	if duration > SlowThreshold {
		event = t.log.Warn()
	}

	event = event.
		Str("operation", t.name).
		Dur("duration_ms", duration)

	for key, value := range t.fields {
		switch v := value.(type) {
		case string:
			event = event.Str(key, v)
		case int:
			event = event.Int(key, v)
		case float64:
			event = event.Float64(key, v)
		case bool:
			event = event.Bool(key, v)
		default:
			event = event.Interface(key, v)
		}
	}

	if duration > SlowThreshold {
		event.Msg("Slow operation detected")
	} else {
		event.Msg("Performance measurement")
	}

	return duration
}

// OperationTimer provides a defer-friendly way to measure operation duration
//
// Usage:
//
//	func (s *Service) Optimize() {
//	    defer utils.OperationTimer("optimize", s.log)()
//	}
func OperationTimer(operation string, log zerolog.Logger) func() {
	t := NewTimer(operation, log)
	return func() { t.Stop() }
}
