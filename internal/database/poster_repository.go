package database

import (
	"database/sql"
	"fmt"
	"time"

	"metabattery/models"
)

// GetPoster returns the stored poster for an item, or nil if absent.
func (r *Repository) GetPoster(itemID int64) (*models.Poster, error) {
	var p models.Poster
	err := r.db.QueryRow(
		`SELECT item_id, image, last_updated FROM posters WHERE item_id = ?`,
		itemID).Scan(&p.ItemID, &p.ImageData, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query poster: %w", err)
	}
	return &p, nil
}

// UpsertPoster stores or replaces the single poster for an item.
func (r *Repository) UpsertPoster(itemID int64, image []byte) error {
	_, err := r.db.Exec(
		`INSERT INTO posters (item_id, image, last_updated)
		 VALUES (?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
		   image = excluded.image,
		   last_updated = excluded.last_updated`,
		itemID, image, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert poster: %w", err)
	}
	return nil
}
