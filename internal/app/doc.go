// Package app holds process wiring shared by the daqctl commands.
//
// Ownership boundary:
// - Deps: logger, metrics registry and collectors built once per process
// - Components: named status sources behind the admin /ready and /status routes
// - Run: signal-aware lifecycle for one command and its admin server
package app
