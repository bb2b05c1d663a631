// Package main hosts the launcher CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground or detached,
// opens interactive and one-shot client sessions, and reports on the named
// resources both sides share. It centralizes configuration resolution and
// logger setup so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: new behaviour belongs in the internal packages and
// is only surfaced here through commands or flags.
package main
