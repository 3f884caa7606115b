// Package task defines the lighter-weight, item-level unit of work used
// for non-chunked sources such as inbound email records. Tasks carry an
// append-only processing log from which retry history is reconstructed.
package task
