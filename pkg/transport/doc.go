// Package transport defines the handler contract and middleware chain
// shared by the interpreter service's HTTP and MCP front ends.
//
// # Handler
//
// ExecuteHandler runs one snippet and returns its Observation. Both front
// ends decode their own wire format into an api.ExecuteRequest and hand it
// to the same wrapped handler, so request ids, logging, panic recovery and
// the capacity limit behave identically for both.
//
// # Middleware
//
// Middleware wraps an ExecuteHandler. Chain(a, b, c) produces a(b(c(h))).
// Built-in middleware covers panic recovery, request id assignment
// (X-Request-ID), structured logging via log/slog and a concurrency limit.
//
// # In-flight executions
//
// InFlightRegistry tracks the cancel functions of running executions so a
// session teardown or a server shutdown can stop them.
package transport
