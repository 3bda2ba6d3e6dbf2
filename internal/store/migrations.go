package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Per-instrument miss probability, kept across restarts
		`CREATE TABLE IF NOT EXISTS instrument_settings (
			name TEXT PRIMARY KEY,
			miss_probability REAL NOT NULL DEFAULT 0
				CHECK(miss_probability >= 0 AND miss_probability <= 100),
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
