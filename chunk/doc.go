// Package chunk defines the bounded partitions of a job's input set.
// Chunks are claimed, completed, failed, and reclaimed exclusively
// through single-row conditional updates, which is what makes the
// engine safe under overlapping stateless invocations.
package chunk
