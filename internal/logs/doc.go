// Package logs tails the files the launcher writes: daemon run logs and the
// client result logs.
//
// Reads are bounded in memory, a negative offset means "the last N lines",
// and follow mode polls for appended lines until its wait expires or the
// context ends. `launcher logs` is the main consumer.
package logs
