// Package journal records every command the daemon dispatches in a SQLite
// database under the daemon state directory.
//
// Rows are opened when a command is dequeued and closed once it finishes, so
// a row left in StatusRunning after a restart marks a command the previous
// daemon never saw complete. Schema changes ship as embedded SQL migrations.
package journal
