package store

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	brand          TEXT NOT NULL,
	competitors    TEXT NOT NULL DEFAULT '[]',
	enabled_models TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS prompt_sets (
	project_id    TEXT NOT NULL,
	version       INTEGER NOT NULL,
	generated_at  TIMESTAMP NOT NULL,
	pipeline_type TEXT NOT NULL,
	idx           INTEGER NOT NULL,
	prompt        TEXT NOT NULL,
	PRIMARY KEY (project_id, pipeline_type, idx)
);

CREATE TABLE IF NOT EXISTS batch_executions (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	executed_at TIMESTAMP NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_batch_executions_project
	ON batch_executions (project_id, executed_at DESC);

CREATE TABLE IF NOT EXISTS batch_results (
	execution_id  TEXT NOT NULL,
	pipeline_type TEXT NOT NULL,
	payload       TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (execution_id, pipeline_type)
);

CREATE TABLE IF NOT EXISTS raw_responses (
	execution_id  TEXT NOT NULL,
	pipeline_type TEXT NOT NULL,
	prompt_index  INTEGER NOT NULL,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	run_index     INTEGER NOT NULL,
	answered_provider TEXT NOT NULL DEFAULT '',
	answered_model    TEXT NOT NULL DEFAULT '',
	response_text TEXT NOT NULL DEFAULT '',
	extracted     TEXT NOT NULL DEFAULT '{}',
	error         TEXT NOT NULL DEFAULT '',
	malformed     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (execution_id, pipeline_type, prompt_index, provider, model, run_index)
);

CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL,
	execution_id TEXT NOT NULL,
	generated_at TIMESTAMP NOT NULL,
	results      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_project
	ON reports (project_id, generated_at DESC);
`
