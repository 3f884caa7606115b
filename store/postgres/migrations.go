package postgres

// migration is one named, ordered schema step. Applied migrations are
// recorded in batch_migrations and skipped on subsequent runs.
type migration struct {
	name       string
	statements []string
}

var migrations = []migration{
	{
		name: "001_create_jobs",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS batch_jobs (
				id               TEXT PRIMARY KEY,
				kind             TEXT NOT NULL,
				owner            TEXT NOT NULL DEFAULT '',
				total_items      INTEGER NOT NULL,
				chunk_size       INTEGER NOT NULL,
				total_chunks     INTEGER NOT NULL,
				cursor           INTEGER NOT NULL DEFAULT 0,
				status           TEXT NOT NULL DEFAULT 'pending',
				completed_chunks INTEGER NOT NULL DEFAULT 0,
				failed_chunks    INTEGER NOT NULL DEFAULT 0,
				errors           JSONB NOT NULL DEFAULT '[]',
				completed_at     TIMESTAMPTZ,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				version          BIGINT NOT NULL DEFAULT 1
			)`, `
			CREATE INDEX IF NOT EXISTS idx_batch_jobs_status
				ON batch_jobs (status, kind)`,
		},
	},
	{
		name: "002_create_chunks",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS batch_chunks (
				id            TEXT PRIMARY KEY,
				job_id        TEXT NOT NULL REFERENCES batch_jobs(id) ON DELETE CASCADE,
				ordinal       INTEGER NOT NULL,
				start_item    INTEGER NOT NULL,
				end_item      INTEGER NOT NULL,
				status        TEXT NOT NULL DEFAULT 'pending',
				retry_count   INTEGER NOT NULL DEFAULT 0,
				max_retries   INTEGER NOT NULL DEFAULT 3,
				last_error    TEXT NOT NULL DEFAULT '',
				retry_history JSONB NOT NULL DEFAULT '[]',
				run_at        TIMESTAMPTZ,
				started_at    TIMESTAMPTZ,
				completed_at  TIMESTAMPTZ,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				version       BIGINT NOT NULL DEFAULT 1,
				UNIQUE (job_id, ordinal)
			)`, `
			CREATE INDEX IF NOT EXISTS idx_batch_chunks_claim
				ON batch_chunks (job_id, ordinal)
				WHERE status = 'pending'`, `
			CREATE INDEX IF NOT EXISTS idx_batch_chunks_stalled
				ON batch_chunks (started_at)
				WHERE status = 'processing'`, `
			CREATE INDEX IF NOT EXISTS idx_batch_chunks_failed
				ON batch_chunks (updated_at)
				WHERE status = 'failed'`,
		},
	},
	{
		name: "003_create_tasks",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS batch_tasks (
				id           TEXT PRIMARY KEY,
				owner        TEXT NOT NULL DEFAULT '',
				kind         TEXT NOT NULL,
				payload_ref  TEXT NOT NULL DEFAULT '',
				source_id    TEXT NOT NULL DEFAULT '',
				content_id   TEXT NOT NULL DEFAULT '',
				status       TEXT NOT NULL DEFAULT 'pending',
				priority     INTEGER NOT NULL DEFAULT 0,
				retry_count  INTEGER NOT NULL DEFAULT 0,
				max_retries  INTEGER NOT NULL DEFAULT 3,
				last_error   TEXT NOT NULL DEFAULT '',
				log          JSONB NOT NULL DEFAULT '[]',
				run_at       TIMESTAMPTZ,
				started_at   TIMESTAMPTZ,
				completed_at TIMESTAMPTZ,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				version      BIGINT NOT NULL DEFAULT 1
			)`, `
			CREATE INDEX IF NOT EXISTS idx_batch_tasks_claim
				ON batch_tasks (priority DESC, created_at ASC)
				WHERE status = 'pending'`, `
			CREATE INDEX IF NOT EXISTS idx_batch_tasks_completed
				ON batch_tasks (completed_at)
				WHERE status = 'completed'`, `
			CREATE INDEX IF NOT EXISTS idx_batch_tasks_dedup
				ON batch_tasks (source_id, content_id)`,
		},
	},
	{
		name: "004_create_alerts",
		statements: []string{`
			CREATE TABLE IF NOT EXISTS batch_alerts (
				id         TEXT PRIMARY KEY,
				severity   TEXT NOT NULL,
				component  TEXT NOT NULL,
				message    TEXT NOT NULL,
				metadata   JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				version    BIGINT NOT NULL DEFAULT 1
			)`, `
			CREATE INDEX IF NOT EXISTS idx_batch_alerts_created
				ON batch_alerts (created_at DESC)`,
		},
	},
}
