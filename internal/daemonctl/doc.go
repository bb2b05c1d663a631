// Package daemonctl inspects and controls a launcher daemon from another
// process: liveness via the pid file and instance lock, detached launch,
// graceful stop with a forced kill fallback, status snapshots read straight
// from the shared segment, and removal of resources left by dead processes.
package daemonctl
