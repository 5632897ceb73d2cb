// Package sinks implements concrete progress consumers: console output,
// structured logging, Prometheus, Pub/Sub forwarding and run history. Each
// sink satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
