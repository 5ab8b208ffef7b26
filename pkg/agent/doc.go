// Package agent implements the ReAct loop controller. An Agent alternates
// model calls and code execution: each model reply is parsed into an
// action, code actions run in one interpreter session through an
// executor.Executor, and the summarised observation is fed back to the
// model until it gives a final answer or the iteration budget is spent.
// Optional collaborators (run store, observer) use nil-safe composition.
package agent
