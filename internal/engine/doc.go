// Package engine coordinates model loading, generation and the shared
// server state. It is structured into small files by concern:
//
//   - engine.go: Engine type, constructor, log helpers, accessors.
//   - config.go: Config and request defaults.
//   - request.go: request resolution and validation.
//   - errors.go: ValidationError and helpers.
//   - load.go: background model load with progress lines.
//   - generate.go: admission and the token loop.
//   - tokenize.go: /tokenize support.
//   - snapshot.go: health and metrics snapshots.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//
// Exactly one generation runs at a time; the gate package enforces it and
// rejected requests never mutate state.
package engine
