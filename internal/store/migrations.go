package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id                 TEXT PRIMARY KEY,
	subject            TEXT NOT NULL,
	from_name          TEXT NOT NULL DEFAULT '',
	from_email         TEXT NOT NULL DEFAULT '',
	to_recipients      TEXT NOT NULL DEFAULT '[]',
	body               TEXT NOT NULL DEFAULT '',
	body_preview       TEXT NOT NULL DEFAULT '',
	received_date_time TEXT NOT NULL,
	is_draft           INTEGER NOT NULL DEFAULT 0,
	conversation_id    TEXT,
	synced_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(received_date_time DESC);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);

CREATE TABLE IF NOT EXISTS templates (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	category   TEXT,
	variables  TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_metadata (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_messages_draft ON messages(is_draft, received_date_time DESC);
CREATE INDEX IF NOT EXISTS idx_templates_created ON templates(created_at DESC);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
