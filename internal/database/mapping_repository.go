package database

import (
	"database/sql"
	"fmt"
	"time"

	"metabattery/models"
)

// GetMapping returns the stored TMDB→IMDb mapping, or nil if none is known.
func (r *Repository) GetMapping(tmdbID int64) (*models.IDMapping, error) {
	var m models.IDMapping
	err := r.db.QueryRow(
		`SELECT tmdb_id, imdb_id, created_at FROM id_mappings WHERE tmdb_id = ?`,
		tmdbID).Scan(&m.TMDBID, &m.IMDBID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query mapping: %w", err)
	}
	return &m, nil
}

// SaveMapping records a resolved TMDB→IMDb mapping. Mappings are permanent;
// re-saving an existing TMDB ID is a no-op.
func (r *Repository) SaveMapping(tmdbID int64, imdbID string) error {
	_, err := r.db.Exec(
		`INSERT INTO id_mappings (tmdb_id, imdb_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(tmdb_id) DO NOTHING`,
		tmdbID, imdbID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save mapping %d: %w", tmdbID, err)
	}
	return nil
}
