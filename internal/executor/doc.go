// Package executor runs one queued command in a subshell with its standard
// streams connected to the requesting client's result FIFOs.
package executor
