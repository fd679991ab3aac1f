// Package dispatch turns setting changes into PQ calls.
//
// The Dispatcher owns the static key table: each changed key maps to one
// procedure (or to a registered passthrough handler), its value is
// transformed where needed, the call is issued on the channel and, when the
// call succeeds, the value is persisted. The Replayer re-issues every
// persisted PQ setting at startup.
//
// Key table:
//   - night-light-enabled → enableBlueLight, persisted as blue-light
//   - night-light-temperature → setBlueLightStrength with the remapped
//     strength, only while night light is enabled
//   - every registry key (pq-mode … global-pq-strength) → its procedure
//   - privacy and location keys → passthrough handlers
//   - anything else is ignored
//
// Persistence policy: a value is written (and synced) only when its call
// succeeded. For status-only procedures success means the transport
// accepted the call.
//
// Both types are used from one goroutine at a time; the daemon runs them on
// its event loop.
package dispatch
