// Package api defines the data model shared by the interpreter service, the
// code executors and the agent loop: observations, execution requests,
// session descriptions, persisted run records and the structured error type
// used at HTTP and model boundaries.
//
// Observations are the single currency of execution results. A failure of
// the executed code is never a Go error; it is an Observation carrying an
// ErrorInfo. Go errors are reserved for infrastructure problems such as an
// unreachable sandbox.
package api
