package store

import (
	"database/sql"
	"errors"
	"time"
)

// InstrumentSetting is the stored configuration of one drum voice.
type InstrumentSetting struct {
	Name            string
	MissProbability float64
	UpdatedAt       time.Time
}

// InstrumentRepository reads and writes instrument settings.
type InstrumentRepository struct {
	db *sql.DB
}

// Instruments returns the instrument repository for this store.
func (s *Store) Instruments() *InstrumentRepository {
	return &InstrumentRepository{db: s.db}
}

// Get returns the setting for name.
func (r *InstrumentRepository) Get(name string) (*InstrumentSetting, error) {
	is := &InstrumentSetting{}
	err := r.db.QueryRow(
		`SELECT name, miss_probability, updated_at FROM instrument_settings WHERE name = ?`,
		name,
	).Scan(&is.Name, &is.MissProbability, &is.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return is, nil
}

// List returns all stored settings ordered by name.
func (r *InstrumentRepository) List() ([]*InstrumentSetting, error) {
	rows, err := r.db.Query(
		`SELECT name, miss_probability, updated_at FROM instrument_settings ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []*InstrumentSetting
	for rows.Next() {
		is := &InstrumentSetting{}
		if err := rows.Scan(&is.Name, &is.MissProbability, &is.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, is)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return settings, nil
}

// Upsert stores the miss probability for is.Name, creating the row if
// needed. The value must already be within [0, 100].
func (r *InstrumentRepository) Upsert(is *InstrumentSetting) error {
	is.UpdatedAt = time.Now()
	_, err := r.db.Exec(
		`INSERT INTO instrument_settings (name, miss_probability, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			miss_probability = excluded.miss_probability,
			updated_at = excluded.updated_at`,
		is.Name, is.MissProbability, is.UpdatedAt,
	)
	return err
}

// Delete removes the setting for name.
func (r *InstrumentRepository) Delete(name string) error {
	result, err := r.db.Exec(`DELETE FROM instrument_settings WHERE name = ?`, name)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Map returns all settings keyed by instrument name.
func (r *InstrumentRepository) Map() (map[string]float64, error) {
	list, err := r.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(list))
	for _, is := range list {
		out[is.Name] = is.MissProbability
	}
	return out, nil
}
