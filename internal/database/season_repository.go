package database

import (
	"database/sql"
	"fmt"

	"metabattery/models"
)

// SeasonWithEpisodes pairs a season row with its episode rows for bulk writes
// and reads.
type SeasonWithEpisodes struct {
	Season   models.Season
	Episodes []models.Episode
}

// UpsertSeasonsAndEpisodes writes a full season/episode listing for a show in
// one transaction. Rows are matched by (item, season number) and (season,
// episode number); existing rows are updated in place and rows missing from
// the input are kept, so repeated or partial listings never shrink the store.
func (r *Repository) UpsertSeasonsAndEpisodes(itemID int64, seasons []SeasonWithEpisodes) error {
	return r.withTx(func(tx *sql.Tx) error {
		for _, se := range seasons {
			var epCount any
			if se.Season.EpisodeCount != nil {
				epCount = *se.Season.EpisodeCount
			}
			_, err := tx.Exec(
				`INSERT INTO seasons (item_id, season_number, episode_count)
				 VALUES (?, ?, ?)
				 ON CONFLICT(item_id, season_number) DO UPDATE SET
				   episode_count = COALESCE(excluded.episode_count, seasons.episode_count)`,
				itemID, se.Season.SeasonNumber, epCount)
			if err != nil {
				return fmt.Errorf("upsert season %d: %w", se.Season.SeasonNumber, err)
			}

			var seasonID int64
			err = tx.QueryRow(
				`SELECT id FROM seasons WHERE item_id = ? AND season_number = ?`,
				itemID, se.Season.SeasonNumber).Scan(&seasonID)
			if err != nil {
				return fmt.Errorf("lookup season %d: %w", se.Season.SeasonNumber, err)
			}

			for _, ep := range se.Episodes {
				var imdbID any
				if ep.IMDBID != "" {
					imdbID = ep.IMDBID
				}
				var runtime any
				if ep.Runtime != nil {
					runtime = *ep.Runtime
				}
				var firstAired any
				if ep.FirstAired != nil {
					firstAired = ep.FirstAired.UTC()
				}
				_, err := tx.Exec(
					`INSERT INTO episodes (season_id, episode_number, imdb_id, title, overview, runtime, first_aired)
					 VALUES (?, ?, ?, ?, ?, ?, ?)
					 ON CONFLICT(season_id, episode_number) DO UPDATE SET
					   imdb_id = COALESCE(excluded.imdb_id, episodes.imdb_id),
					   title = CASE WHEN excluded.title <> '' THEN excluded.title ELSE episodes.title END,
					   overview = CASE WHEN excluded.overview <> '' THEN excluded.overview ELSE episodes.overview END,
					   runtime = COALESCE(excluded.runtime, episodes.runtime),
					   first_aired = COALESCE(excluded.first_aired, episodes.first_aired)`,
					seasonID, ep.EpisodeNumber, imdbID, ep.Title, ep.Overview, runtime, firstAired)
				if err != nil {
					return fmt.Errorf("upsert episode s%de%d: %w",
						se.Season.SeasonNumber, ep.EpisodeNumber, err)
				}
			}
		}
		return nil
	})
}

// GetSeasonsWithEpisodes returns a show's stored seasons and their episodes.
func (r *Repository) GetSeasonsWithEpisodes(itemID int64) ([]SeasonWithEpisodes, error) {
	rows, err := r.db.Query(
		`SELECT id, item_id, season_number, episode_count
		 FROM seasons WHERE item_id = ? ORDER BY season_number`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query seasons: %w", err)
	}
	defer rows.Close()

	var seasons []SeasonWithEpisodes
	for rows.Next() {
		var s models.Season
		var epCount sql.NullInt64
		if err := rows.Scan(&s.ID, &s.ItemID, &s.SeasonNumber, &epCount); err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		if epCount.Valid {
			c := int(epCount.Int64)
			s.EpisodeCount = &c
		}
		seasons = append(seasons, SeasonWithEpisodes{Season: s})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range seasons {
		episodes, err := r.episodesForSeason(seasons[i].Season.ID)
		if err != nil {
			return nil, err
		}
		seasons[i].Episodes = episodes
	}
	return seasons, nil
}

func (r *Repository) episodesForSeason(seasonID int64) ([]models.Episode, error) {
	rows, err := r.db.Query(
		`SELECT id, season_id, episode_number, imdb_id, title, overview, runtime, first_aired
		 FROM episodes WHERE season_id = ? ORDER BY episode_number`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []models.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (models.Episode, error) {
	var ep models.Episode
	var imdbID sql.NullString
	var runtime sql.NullInt64
	var firstAired sql.NullTime
	err := row.Scan(&ep.ID, &ep.SeasonID, &ep.EpisodeNumber, &imdbID,
		&ep.Title, &ep.Overview, &runtime, &firstAired)
	if err != nil {
		return models.Episode{}, fmt.Errorf("scan episode: %w", err)
	}
	ep.IMDBID = imdbID.String
	if runtime.Valid {
		rt := int(runtime.Int64)
		ep.Runtime = &rt
	}
	if firstAired.Valid {
		t := firstAired.Time
		ep.FirstAired = &t
	}
	return ep, nil
}

// FindShowByEpisodeIMDB resolves an episode-level IMDb ID to its parent show.
// Returns nils (no error) when the episode is unknown.
func (r *Repository) FindShowByEpisodeIMDB(episodeIMDBID string) (*models.Item, *models.Season, *models.Episode, error) {
	row := r.db.QueryRow(
		`SELECT e.id, e.season_id, e.episode_number, e.imdb_id, e.title, e.overview, e.runtime, e.first_aired,
		        s.id, s.item_id, s.season_number, s.episode_count
		 FROM episodes e
		 JOIN seasons s ON s.id = e.season_id
		 WHERE e.imdb_id = ?`, episodeIMDBID)

	var ep models.Episode
	var epIMDB sql.NullString
	var runtime sql.NullInt64
	var firstAired sql.NullTime
	var season models.Season
	var epCount sql.NullInt64
	err := row.Scan(&ep.ID, &ep.SeasonID, &ep.EpisodeNumber, &epIMDB,
		&ep.Title, &ep.Overview, &runtime, &firstAired,
		&season.ID, &season.ItemID, &season.SeasonNumber, &epCount)
	if err == sql.ErrNoRows {
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("lookup episode %s: %w", episodeIMDBID, err)
	}
	ep.IMDBID = epIMDB.String
	if runtime.Valid {
		rt := int(runtime.Int64)
		ep.Runtime = &rt
	}
	if firstAired.Valid {
		t := firstAired.Time
		ep.FirstAired = &t
	}
	if epCount.Valid {
		c := int(epCount.Int64)
		season.EpisodeCount = &c
	}

	item, err := r.GetItemByID(season.ItemID)
	if err != nil {
		return nil, nil, nil, err
	}
	return item, &season, &ep, nil
}
