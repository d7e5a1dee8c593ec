// Package version exposes build metadata of the alarm-push binaries.
//
// Version, Commit and BuildTime are injected with -ldflags "-X ..." at build
// time. The values are printed by the `version` subcommand of both binaries
// and attached to their startup log lines.
package version
