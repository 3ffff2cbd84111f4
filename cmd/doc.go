// Package cmd implements the command-line interface of dLock. Every command
// opens the configured backend store, runs against it and closes it again.
//
// The package is organized into several subpackages:
//
//   - lock: Commands to acquire, hold and inspect consistent key locks
//   - ids: Commands to allocate unique id blocks
//   - perf: Concurrent id allocation benchmark with a disjointness check
//   - info: Backend guarantees and engine statistics
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dlock -help for a list of all commands.
package cmd
