// Package daemon coordinates the long-running launcher process.
//
// A Daemon owns the OS-global resources clients rendezvous on: it creates and
// initialises the shared queue segment and the control FIFO at startup, holds
// an flock so only one instance runs, and removes both again at shutdown.
// Between those points its Dispatcher pairs each envelope read from the
// control FIFO with the next message dequeued from the shared queue and runs
// the command to completion before reading the next pair.
//
// Keep orchestration here; subshell handling lives in executor and the wire
// details in channel and shmqueue.
package daemon
