package database

import (
	"database/sql"
	"fmt"
	"time"

	"metabattery/models"
)

// GetItemByIMDB returns the item with the given IMDb ID, or nil if absent.
func (r *Repository) GetItemByIMDB(imdbID string) (*models.Item, error) {
	row := r.db.QueryRow(
		`SELECT id, imdb_id, title, kind, year, created_at, updated_at
		 FROM items WHERE imdb_id = ?`, imdbID)
	return scanItem(row)
}

// GetItemByID returns the item with the given row ID, or nil if absent.
func (r *Repository) GetItemByID(id int64) (*models.Item, error) {
	row := r.db.QueryRow(
		`SELECT id, imdb_id, title, kind, year, created_at, updated_at
		 FROM items WHERE id = ?`, id)
	return scanItem(row)
}

func scanItem(row *sql.Row) (*models.Item, error) {
	var item models.Item
	var year sql.NullInt64
	err := row.Scan(&item.ID, &item.IMDBID, &item.Title, &item.Kind, &year,
		&item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}
	if year.Valid {
		y := int(year.Int64)
		item.Year = &y
	}
	return &item, nil
}

// EnsureItem inserts the item if its IMDb ID is new, otherwise updates the
// descriptive fields that are actually set. Empty title/kind and nil year
// never overwrite existing values.
func (r *Repository) EnsureItem(imdbID, title, kind string, year *int) (*models.Item, error) {
	var yearArg any
	if year != nil {
		yearArg = *year
	}
	now := time.Now().UTC()
	_, err := r.db.Exec(
		`INSERT INTO items (imdb_id, title, kind, year, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(imdb_id) DO UPDATE SET
		   title = CASE WHEN excluded.title <> '' THEN excluded.title ELSE items.title END,
		   kind = CASE WHEN excluded.kind <> '' THEN excluded.kind ELSE items.kind END,
		   year = COALESCE(excluded.year, items.year),
		   updated_at = excluded.updated_at`,
		imdbID, title, kind, yearArg, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert item %s: %w", imdbID, err)
	}
	return r.GetItemByIMDB(imdbID)
}

// GetMetadata returns all metadata entries for an item.
func (r *Repository) GetMetadata(itemID int64) ([]models.MetadataEntry, error) {
	rows, err := r.db.Query(
		`SELECT id, item_id, key, value, provider, last_updated
		 FROM item_metadata WHERE item_id = ? ORDER BY key`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	var entries []models.MetadataEntry
	for rows.Next() {
		var entry models.MetadataEntry
		var raw string
		if err := rows.Scan(&entry.ID, &entry.ItemID, &entry.Key, &raw,
			&entry.Provider, &entry.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		value, err := models.DecodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("decode metadata %q: %w", entry.Key, err)
		}
		entry.Value = value
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// UpsertMetadata writes provider values for an item in a single transaction.
// Existing keys from the same provider are updated in place; keys not in the
// batch are left untouched.
func (r *Repository) UpsertMetadata(itemID int64, provider string, values models.MetadataMap) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return r.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO item_metadata (item_id, key, value, provider, last_updated)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(item_id, key, provider) DO UPDATE SET
			   value = excluded.value,
			   last_updated = excluded.last_updated`)
		if err != nil {
			return fmt.Errorf("prepare metadata upsert: %w", err)
		}
		defer stmt.Close()

		for key, value := range values {
			encoded, err := models.EncodeValue(value)
			if err != nil {
				return fmt.Errorf("encode metadata %q: %w", key, err)
			}
			if _, err := stmt.Exec(itemID, key, encoded, provider, now); err != nil {
				return fmt.Errorf("upsert metadata %q: %w", key, err)
			}
		}

		_, err = tx.Exec(`UPDATE items SET updated_at = ? WHERE id = ?`, now, itemID)
		return err
	})
}

// LastRefreshed returns the newest metadata timestamp for an item, or nil if
// the item has no metadata yet. The column is selected directly rather than
// through MAX(), which would strip the declared type and hand back a string.
func (r *Repository) LastRefreshed(itemID int64) (*time.Time, error) {
	var ts time.Time
	err := r.db.QueryRow(
		`SELECT last_updated FROM item_metadata WHERE item_id = ?
		 ORDER BY last_updated DESC LIMIT 1`, itemID).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last refresh: %w", err)
	}
	return &ts, nil
}

// ListStaleItems returns items whose newest metadata is older than the cutoff,
// including items that have no metadata at all.
func (r *Repository) ListStaleItems(cutoff time.Time) ([]models.Item, error) {
	rows, err := r.db.Query(
		`SELECT i.id, i.imdb_id, i.title, i.kind, i.year, i.created_at, i.updated_at
		 FROM items i
		 LEFT JOIN item_metadata m ON m.item_id = i.id
		 GROUP BY i.id
		 HAVING MAX(m.last_updated) IS NULL OR MAX(m.last_updated) < ?
		 ORDER BY i.id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ListItems returns every item in the store ordered by IMDb ID.
func (r *Repository) ListItems() ([]models.Item, error) {
	rows, err := r.db.Query(
		`SELECT id, imdb_id, title, kind, year, created_at, updated_at
		 FROM items ORDER BY imdb_id`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]models.Item, error) {
	var items []models.Item
	for rows.Next() {
		var item models.Item
		var year sql.NullInt64
		if err := rows.Scan(&item.ID, &item.IMDBID, &item.Title, &item.Kind,
			&year, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if year.Valid {
			y := int(year.Int64)
			item.Year = &y
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteItem removes an item and, via cascades, its metadata, seasons,
// episodes and poster. Returns false if no such item existed.
func (r *Repository) DeleteItem(imdbID string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM items WHERE imdb_id = ?`, imdbID)
	if err != nil {
		return false, fmt.Errorf("delete item %s: %w", imdbID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Stats summarizes store contents.
func (r *Repository) Stats() (*models.StoreStats, error) {
	stats := &models.StoreStats{Providers: make(map[string]int64)}

	if err := r.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&stats.TotalItems); err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM item_metadata`).Scan(&stats.TotalMetadata); err != nil {
		return nil, fmt.Errorf("count metadata: %w", err)
	}

	rows, err := r.db.Query(
		`SELECT provider, COUNT(*) FROM item_metadata GROUP BY provider`)
	if err != nil {
		return nil, fmt.Errorf("count providers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var provider string
		var count int64
		if err := rows.Scan(&provider, &count); err != nil {
			return nil, err
		}
		stats.Providers[provider] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last time.Time
	err = r.db.QueryRow(
		`SELECT last_updated FROM item_metadata
		 ORDER BY last_updated DESC LIMIT 1`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query last update: %w", err)
	}
	if err == nil {
		stats.LastUpdate = &last
	}
	return stats, nil
}
