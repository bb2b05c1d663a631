// Package client implements the submitting side of the launcher protocol.
//
// A Session maps the shared queue, connects to the control FIFO, creates the
// process's own result FIFO pair and starts one collector per FIFO before any
// command is sent. Each submission pushes the command text onto the queue and
// then writes the session's envelope to the control FIFO, both under a
// host-wide submit lock so every client's queue order matches its envelope
// order.
package client
