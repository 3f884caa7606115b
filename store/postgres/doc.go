// Package postgres provides a PostgreSQL-backed Store using pgx/v5.
//
// Every lifecycle transition is a single conditional UPDATE so that
// concurrent workers, retry sweeps, and stall sweeps can race safely:
// the row's current status (and, for stall resets, its version) is part
// of the WHERE clause, and a lost race shows up as zero affected rows
// rather than a corrupted state. Claims use SELECT ... FOR UPDATE SKIP
// LOCKED so concurrent claimers receive disjoint sets.
package postgres
