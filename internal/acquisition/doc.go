// Package acquisition paces fixed-size sample buffers against wall-clock time.
//
// A Pacer owns one goroutine per stream. Buffer deadlines are computed from the
// stream start and the running sample index, so late wakeups are absorbed by
// producing the overdue buffers back to back instead of accumulating drift.
package acquisition
