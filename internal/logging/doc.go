// Package logging provides a simple leveled logging interface for the
// catalog, its background workers and the command line front end.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable (or
// DEBUG=true). Output goes to stderr through logrus and can additionally be
// written to a size-rotated file with SetOutputFile.
package logging
