package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "initial schema: users and daily quota ledger",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS daily_quota (
				user_id TEXT NOT NULL,
				utc_date TEXT NOT NULL,
				tokens_consumed INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (user_id, utc_date)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_daily_quota_date ON daily_quota(utc_date)`,
		},
	})
}
