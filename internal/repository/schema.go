package repository

// Schema definitions for the Cipher backing store.
// Compatible with both SQLite and PostgreSQL.

// schemaComplaints holds live complaint documents. Field names inside the
// document vary by producer and are normalized on read.
const schemaComplaints = `
CREATE TABLE IF NOT EXISTS complaints (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'Open',
    created_at TIMESTAMP NOT NULL,
    fields TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_complaints_created ON complaints(created_at);
`

const schemaHistory = `
CREATE TABLE IF NOT EXISTS history_complaints (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    fields TEXT NOT NULL,
    resolution_date TIMESTAMP NOT NULL,
    resolution_notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_history_resolution ON history_complaints(resolution_date);
`

const schemaBankAlerts = `
CREATE TABLE IF NOT EXISTS bank_alerts (
    id TEXT PRIMARY KEY,
    alert_id TEXT NOT NULL,
    complaint_id TEXT NOT NULL,
    status TEXT NOT NULL,
    forwarded_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bank_alerts_complaint ON bank_alerts(complaint_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaComplaints,
		schemaHistory,
		schemaBankAlerts,
	}
}
