// Package commands maps named commands with positional string arguments
// onto session operations. Results are written to a progress.Notifier.
package commands
