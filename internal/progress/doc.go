// Package progress carries tracker lifecycle events to notification sinks. A
// non-blocking Hub batches events on a background goroutine and fans them out
// in emission order to pluggable sinks such as the console, zap, Prometheus,
// Pub/Sub, or the run history store.
package progress
