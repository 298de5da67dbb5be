package repository

import "database/sql"

// NewRepositories creates all repositories backed by the given database.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		User:  NewSQLiteUserRepository(db),
		Quota: NewSQLiteQuotaRepository(db),
	}
}
