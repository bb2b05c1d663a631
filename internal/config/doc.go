// Package config loads, normalizes, and validates cmdlauncher configuration.
//
// It supplies repository defaults for every named IPC resource (shared memory
// segment, control FIFO, result FIFO prefixes), expands user paths (including
// tilde shortcuts), reads TOML files, and honours the CMDLAUNCHER_SHELL
// environment override. Both the daemon and the client read the same file so
// that they agree on resource names without any handshake.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
