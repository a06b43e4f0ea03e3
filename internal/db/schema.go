package db

// Schema is applied by Migrate. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	process_title TEXT NOT NULL DEFAULT '',
	selected_category TEXT NOT NULL DEFAULT '',
	selected_test_type TEXT NOT NULL DEFAULT '',
	model_output JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS selection_runs (
	id UUID PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'pending',
	model TEXT NOT NULL DEFAULT '',
	input JSONB NOT NULL,
	result JSONB,
	error TEXT,
	started_at TIMESTAMP WITH TIME ZONE,
	completed_at TIMESTAMP WITH TIME ZONE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sessions_combination
	ON sessions(process_title, selected_category, selected_test_type);
CREATE INDEX IF NOT EXISTS idx_selection_runs_status ON selection_runs(status);
`

// Tables lists the store's tables, children first
var Tables = []string{"selection_runs", "sessions"}
