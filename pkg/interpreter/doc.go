// Package interpreter runs Go source snippets inside a persistent, per-session
// interpreter built on yaegi.
//
// A Context owns one interpreter instance. Variables, functions and types
// defined by one Run stay visible to later runs on the same Context, which
// gives the read-eval-print semantics an agent needs to build up an analysis
// step by step. Two Contexts never share interpreter state; the only state
// deliberately visible to every session is the process-wide Shared block,
// exposed to interpreted code as the "globals" package:
//
//	import "globals"
//	globals.Set("rows", 42)
//
// Interpreted code also sees a "session" package with the session ID and
// the directory where files written during a run are collected as
// artifacts.
//
// Isolation is logical, not a security boundary. Interpreted code shares the
// host process: environment variables, the working directory, the file
// system and native libraries are common to all sessions. Cancellation is
// cooperative: a run that is blocked inside a native call (network I/O, a
// channel operation in a spawned goroutine) keeps running in the background
// after its timeout fires, and a panic in a goroutine spawned by interpreted
// code terminates the process.
package interpreter
