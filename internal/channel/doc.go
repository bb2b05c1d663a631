// Package channel implements the named-pipe side of the launcher protocol.
//
// The control channel is a single well-known FIFO that clients write
// fixed-size request envelopes to. Each envelope names a client's result
// channel: a pair of per-client FIFOs (output and error) that the daemon
// connects a command's stdout and stderr to.
//
// Readers open their FIFO read-write so they never observe end-of-stream
// between writers, and their blocking reads are cancelled through context by
// expiring the read deadline. Writers open non-blocking so a missing reader
// surfaces as ErrNoReader instead of a hang.
package channel
