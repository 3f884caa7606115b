// Package engine wires the stores, worker pool, retry controller,
// stall detector, dedup filter, and alerting into one façade.
//
// The engine is built for stateless, time-bounded invocations: each
// call to ProcessSlice claims at most one slice of chunks, processes
// them, persists an explicit continuation cursor, and hands off. A
// Continuation implementation re-triggers the next slice on a fresh
// invocation; Drive loops slices in-process for deployments without
// that constraint. RunTick is the periodic maintenance entry point:
// stall recovery, retry sweeps, job resumption, queue task processing,
// and threshold alerting.
package engine
