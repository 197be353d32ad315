// Package observability holds the two bounded, in-memory FIFO rings that
// back the request and redaction logs exposed by the management API.
// Neither ring is authoritative state — both are diagnostic only and are
// lost on restart.
//
// Grounded on the teacher's metrics.Metrics mutex-guarded accumulator
// pattern (internal/metrics/metrics.go), extended from running counters to
// fixed-capacity ring buffers.
package observability

import (
	"sync"
	"time"
)

const (
	requestRingCapacity   = 500
	redactionRingCapacity = 100
	redactionTTL          = 15 * time.Minute
	previewMaxChars       = 500
)

// RequestLogEntry records one completed proxied request.
type RequestLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	IP         string    `json:"ip"`
	DurationMs float64   `json:"durationMs"`
	SessionID  string    `json:"sessionId,omitempty"`
}

// DetectionSummary is the subset of a redact.Detection worth surfacing in
// the redaction log, kept independent of the redact package to avoid a
// needless import for a diagnostic-only view.
type DetectionSummary struct {
	Layer      string  `json:"layer"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// RedactionLogEntry records one redaction call that produced ≥1 detection.
type RedactionLogEntry struct {
	Timestamp       time.Time          `json:"timestamp"`
	Source          string             `json:"source"` // api | openai | anthropic
	SessionID       string             `json:"sessionId"`
	InputPreview    string             `json:"inputPreview"`
	RedactedPreview string             `json:"redactedPreview"`
	Detections      []DetectionSummary `json:"detections"`
}

// Ring is the observability store: two independent FIFO buffers guarded by
// their own mutex, mirroring the teacher's per-dimension mutex split
// between anonymization and upstream latency.
type Ring struct {
	reqMu      sync.Mutex
	requests   []RequestLogEntry

	redMu      sync.Mutex
	redactions []RedactionLogEntry
}

// New returns an empty Ring.
func New() *Ring {
	return &Ring{}
}

// RecordRequest appends a request-log entry, evicting the oldest by FIFO
// once the ring is at capacity.
func (r *Ring) RecordRequest(e RequestLogEntry) {
	r.reqMu.Lock()
	defer r.reqMu.Unlock()
	r.requests = append(r.requests, e)
	if len(r.requests) > requestRingCapacity {
		r.requests = r.requests[len(r.requests)-requestRingCapacity:]
	}
}

// RecordRedaction appends a redaction-log entry if it carries at least one
// detection, truncating previews to previewMaxChars runes and evicting the
// oldest entry by FIFO once the ring is at capacity.
func (r *Ring) RecordRedaction(source, sessionID, input, redacted string, detections []DetectionSummary) {
	if len(detections) == 0 {
		return
	}
	entry := RedactionLogEntry{
		Timestamp:       nowFunc(),
		Source:          source,
		SessionID:       sessionID,
		InputPreview:    truncatePreview(input),
		RedactedPreview: truncatePreview(redacted),
		Detections:      detections,
	}
	r.redMu.Lock()
	defer r.redMu.Unlock()
	r.redactions = append(r.redactions, entry)
	if len(r.redactions) > redactionRingCapacity {
		r.redactions = r.redactions[len(r.redactions)-redactionRingCapacity:]
	}
}

// Requests returns a snapshot of the request-log ring, newest last.
func (r *Ring) Requests() []RequestLogEntry {
	r.reqMu.Lock()
	defer r.reqMu.Unlock()
	out := make([]RequestLogEntry, len(r.requests))
	copy(out, r.requests)
	return out
}

// Redactions returns a snapshot of the redaction-log ring, after eagerly
// discarding any entry older than 15 minutes. Newest last.
func (r *Ring) Redactions() []RedactionLogEntry {
	r.redMu.Lock()
	defer r.redMu.Unlock()
	cutoff := nowFunc().Add(-redactionTTL)
	kept := r.redactions[:0:0]
	for _, e := range r.redactions {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	r.redactions = kept
	out := make([]RedactionLogEntry, len(kept))
	copy(out, kept)
	return out
}

// ClearRequests empties the request-log ring.
func (r *Ring) ClearRequests() {
	r.reqMu.Lock()
	defer r.reqMu.Unlock()
	r.requests = nil
}

// ClearRedactions empties the redaction-log ring.
func (r *Ring) ClearRedactions() {
	r.redMu.Lock()
	defer r.redMu.Unlock()
	r.redactions = nil
}

// nowFunc is a seam for deterministic tests.
var nowFunc = time.Now

func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewMaxChars {
		return s
	}
	return string(runes[:previewMaxChars])
}
