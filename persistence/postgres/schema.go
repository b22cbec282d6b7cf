package postgres

import (
	"context"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflow_executions (
	id                TEXT PRIMARY KEY,
	template_id       TEXT NOT NULL,
	template_version  INT NOT NULL DEFAULT 0,
	project_id        TEXT NOT NULL DEFAULT '',
	workspace_id      TEXT NOT NULL DEFAULT '',
	user_id           TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	progress_percent  INT NOT NULL DEFAULT 0,
	current_node_id   TEXT NOT NULL DEFAULT '',
	execution_context JSONB NOT NULL DEFAULT '{}'::jsonb,
	input_config      JSONB NOT NULL DEFAULT '{}'::jsonb,
	input_tokens      INT NOT NULL DEFAULT 0,
	output_tokens     INT NOT NULL DEFAULT 0,
	error_message     TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	run_owner         TEXT NOT NULL DEFAULT '',
	run_lease_until   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS node_outputs (
	id              TEXT PRIMARY KEY,
	execution_id    TEXT NOT NULL REFERENCES workflow_executions(id),
	node_id         TEXT NOT NULL,
	node_type       TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	execution_order INT NOT NULL,
	iteration       INT NOT NULL DEFAULT 0,
	outputs         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS node_outputs_execution_idx ON node_outputs (execution_id, execution_order);

CREATE TABLE IF NOT EXISTS agent_jobs (
	id              TEXT PRIMARY KEY,
	execution_id    TEXT NOT NULL REFERENCES workflow_executions(id),
	node_id         TEXT NOT NULL,
	node_type       TEXT NOT NULL,
	execution_order INT NOT NULL,
	iteration       INT NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	output          JSONB,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS agent_jobs_execution_idx ON agent_jobs (execution_id, created_at);
`

// Migrate creates the tables when they do not exist.
func (s *ExecutionStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}
