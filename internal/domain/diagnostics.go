package domain

import "time"

// DiagnosticLevel is the severity of a diagnostic event.
type DiagnosticLevel string

const (
	LevelInfo     DiagnosticLevel = "INFO"
	LevelWarning  DiagnosticLevel = "WARNING"
	LevelError    DiagnosticLevel = "ERROR"
	LevelCritical DiagnosticLevel = "CRITICAL"
)

// maxRecentEntries bounds the per-report entry history.
const maxRecentEntries = 100

// DiagnosticEntry is a single diagnostic event attributed to a component.
type DiagnosticEntry struct {
	Level       DiagnosticLevel   `json:"level"`
	Timestamp   time.Time         `json:"timestamp"`
	ComponentID string            `json:"component_id"`
	Message     string            `json:"message"`
	Code        string            `json:"code,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
}

// NewDiagnosticEntry stamps an entry with the current time.
func NewDiagnosticEntry(level DiagnosticLevel, componentID, message string) DiagnosticEntry {
	return DiagnosticEntry{
		Level:       level,
		Timestamp:   time.Now().UTC(),
		ComponentID: componentID,
		Message:     message,
	}
}

// WithCode attaches a machine-readable diagnostic code.
func (e DiagnosticEntry) WithCode(code string) DiagnosticEntry {
	e.Code = code
	return e
}

// WithContext attaches one key/value pair of context data.
func (e DiagnosticEntry) WithContext(key, value string) DiagnosticEntry {
	ctx := make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	e.Context = ctx
	return e
}

// DiagnosticsReport aggregates diagnostic events; recent entries are capped at
// 100 so a chatty component cannot grow packets without bound.
type DiagnosticsReport struct {
	Timestamp      time.Time         `json:"timestamp"`
	TotalEntries   uint32            `json:"total_entries"`
	EntriesByLevel map[string]uint32 `json:"entries_by_level"`
	RecentEntries  []DiagnosticEntry `json:"recent_entries"`
}

// NewDiagnosticsReport returns an empty report.
func NewDiagnosticsReport() DiagnosticsReport {
	return DiagnosticsReport{
		Timestamp:      time.Now().UTC(),
		EntriesByLevel: make(map[string]uint32),
	}
}

// AddEntry records an event, updating the per-level counts and evicting the
// oldest entry once the cap is reached.
func (r *DiagnosticsReport) AddEntry(entry DiagnosticEntry) {
	if r.EntriesByLevel == nil {
		r.EntriesByLevel = make(map[string]uint32)
	}
	r.EntriesByLevel[string(entry.Level)]++
	r.TotalEntries++
	r.RecentEntries = append(r.RecentEntries, entry)
	if len(r.RecentEntries) > maxRecentEntries {
		r.RecentEntries = r.RecentEntries[1:]
	}
}

// Clone deep-copies the report so buffered packets stay immutable.
func (r DiagnosticsReport) Clone() DiagnosticsReport {
	out := r
	if r.EntriesByLevel != nil {
		out.EntriesByLevel = make(map[string]uint32, len(r.EntriesByLevel))
		for k, v := range r.EntriesByLevel {
			out.EntriesByLevel[k] = v
		}
	}
	if r.RecentEntries != nil {
		out.RecentEntries = make([]DiagnosticEntry, len(r.RecentEntries))
		copy(out.RecentEntries, r.RecentEntries)
		for i, entry := range out.RecentEntries {
			if entry.Context == nil {
				continue
			}
			ctx := make(map[string]string, len(entry.Context))
			for k, v := range entry.Context {
				ctx[k] = v
			}
			out.RecentEntries[i].Context = ctx
		}
	}
	return out
}
