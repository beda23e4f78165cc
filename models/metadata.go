package models

import "time"

// Source tags reported on every facade response.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Item kinds. Kind is unknown until the first successful provider fetch.
const (
	KindMovie = "movie"
	KindShow  = "show"
)

// Item is one media work, keyed by its IMDb ID.
type Item struct {
	ID        int64     `json:"id"`
	IMDBID    string    `json:"imdbId"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind,omitempty"` // "movie" | "show" | ""
	Year      *int      `json:"year,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MetadataEntry is one key/value fact about an item, scoped by provider.
type MetadataEntry struct {
	ID          int64     `json:"id"`
	ItemID      int64     `json:"itemId"`
	Key         string    `json:"key"`
	Value       MetaValue `json:"value"`
	Provider    string    `json:"provider"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Season belongs to a show item.
type Season struct {
	ID           int64 `json:"id"`
	ItemID       int64 `json:"itemId"`
	SeasonNumber int   `json:"seasonNumber"`
	EpisodeCount *int  `json:"episodeCount,omitempty"`
}

// Episode belongs to a season. The IMDb ID is optional but globally unique
// when present; it is what lets an episode-level lookup find its show.
type Episode struct {
	ID            int64      `json:"id"`
	SeasonID      int64      `json:"seasonId"`
	EpisodeNumber int        `json:"episodeNumber"`
	IMDBID        string     `json:"imdbId,omitempty"`
	Title         string     `json:"title,omitempty"`
	Overview      string     `json:"overview,omitempty"`
	Runtime       *int       `json:"runtime,omitempty"` // minutes
	FirstAired    *time.Time `json:"firstAired,omitempty"`
}

// Poster is the cached binary image for an item (at most one per item).
type Poster struct {
	ItemID      int64     `json:"itemId"`
	ImageData   []byte    `json:"-"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// IDMapping records a learned TMDB→IMDb resolution. Mappings are permanent.
type IDMapping struct {
	TMDBID    int64     `json:"tmdbId"`
	IMDBID    string    `json:"imdbId"`
	CreatedAt time.Time `json:"createdAt"`
}

// MetadataResult is the response for a whole-item metadata read.
type MetadataResult struct {
	Metadata MetadataMap `json:"metadata"`
	Source   string      `json:"source"`
	Kind     string      `json:"type"`
	// Stale is set when the provider could not be reached and the cached
	// data being returned is past its staleness threshold.
	Stale bool `json:"stale,omitempty"`
}

// EpisodeInfo is the per-episode payload inside a seasons response.
type EpisodeInfo struct {
	Title      string `json:"title"`
	Overview   string `json:"overview,omitempty"`
	Runtime    *int   `json:"runtime"`
	FirstAired string `json:"firstAired"` // RFC 3339, empty if unknown
	IMDBID     string `json:"imdbId,omitempty"`
}

// SeasonInfo groups a season's episode count with its episodes keyed by
// episode number.
type SeasonInfo struct {
	EpisodeCount *int                   `json:"episodeCount"`
	Episodes     map[string]EpisodeInfo `json:"episodes"`
}

// SeasonsResult is the response for a seasons read: seasons keyed by season
// number.
type SeasonsResult struct {
	Seasons map[string]SeasonInfo `json:"seasons"`
	Source  string                `json:"source"`
}

// EpisodeBundle bridges an episode-level IMDb ID to its parent show.
type EpisodeBundle struct {
	ShowIMDBID string      `json:"showImdbId"`
	Show       MetadataMap `json:"show"`
	Episode    MetaValue   `json:"episode"`
	Source     string      `json:"source"`
}

// ReleaseDatesResult carries an item's release date structure.
type ReleaseDatesResult struct {
	ReleaseDates MetaValue `json:"releaseDates"`
	Source       string    `json:"source"`
}

// StoreStats summarizes the entity store.
type StoreStats struct {
	TotalItems    int64            `json:"totalItems"`
	TotalMetadata int64            `json:"totalMetadata"`
	Providers     map[string]int64 `json:"providers"`
	LastUpdate    *time.Time       `json:"lastUpdate,omitempty"`
}
