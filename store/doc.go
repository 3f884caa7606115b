// Package store defines the composite persistence contract for the
// engine. Each subsystem (job, chunk, task, alert) declares its own
// store interface; a single backend implements all of them. Two
// backends ship with the engine: an in-memory store for tests and
// development, and a PostgreSQL store for production.
package store
