package state

import "time"

// Observation is a point-in-time snapshot of one system's externally
// visible data. Only Data participates in state identity; Metadata and
// ObservedAt are informational. Immutable once created.
type Observation struct {
	// System names the subsystem this snapshot came from.
	System string

	// Data is the observed content, shaped like decoded JSON.
	Data map[string]any

	// Metadata carries diagnostics (latency, dropped-event counts, ...).
	// Never hashed.
	Metadata map[string]any

	// ObservedAt records when the snapshot was taken. Never hashed.
	ObservedAt time.Time
}

// NewObservation builds an Observation, deep-copying data so later
// mutation by the producing system cannot leak into recorded states.
func NewObservation(system string, data map[string]any) Observation {
	return Observation{
		System:     system,
		Data:       cloneData(data),
		ObservedAt: time.Now(),
	}
}

// NewObservationWithMetadata is NewObservation plus diagnostic metadata.
func NewObservationWithMetadata(system string, data, metadata map[string]any) Observation {
	obs := NewObservation(system, data)
	obs.Metadata = cloneData(metadata)
	return obs
}
