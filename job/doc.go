// Package job defines the top-level unit of ingestion work: a Job with a
// fixed input set, partitioned into chunks, whose aggregate status is
// always derived from chunk outcomes rather than incremented in place.
package job
