// Package collector drains a client's result FIFOs into append-only sinks.
//
// One Collector runs per FIFO for the whole client session. Every chunk read
// is appended to its sink wrapped in the result banner and flushed before the
// next read.
package collector
