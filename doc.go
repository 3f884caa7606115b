// Package batch provides a durable, chunk-parallel batch job engine for
// ingesting and enriching catalog data from slow, unreliable, high-volume
// external sources — inbound email attachments, supplier feeds, large
// reference-file imports, and cross-catalog auto-linking.
//
// The engine is built for environments where every unit of work executes
// inside a short-lived, stateless invocation that can be killed or
// re-invoked at any time. All coordination state lives in a shared
// relational store; there is no in-process shared memory between units
// of work. Every status transition is a single atomic conditional update
// scoped to one row, so overlapping invocations are safe by construction.
//
// # Quick Start
//
//	st := memory.New()
//	eng, err := engine.New(st)
//	if err != nil { ... }
//	eng.Register("product_import", importChunk)
//	j, err := eng.CreateJob(ctx, "product_import", 250)
//	final, err := eng.Drive(ctx, j.ID)
//
// # Architecture
//
// The engine follows a composable store pattern where each subsystem
// (job, chunk, task, alert) defines its own store interface and a single
// backend implements all of them. Jobs are partitioned into fixed-size
// chunks processed independently under bounded concurrency. Failed
// chunks are re-admitted by the retry controller, abandoned chunks are
// reclaimed by the stall detector, and jobs larger than one invocation
// budget continue themselves through a persisted cursor.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package batch
