package ipc

import "metabattery/models"

// Request and response payloads for the JSON-RPC facade. Every lookup
// response carries a Found flag: an unknown ID is a normal outcome, not an
// RPC error. Errors are reserved for store or upstream failures.

type MovieMetadataRequest struct {
	IMDBID string `json:"imdbId"`
}

type MovieMetadataResponse struct {
	Found    bool               `json:"found"`
	Metadata models.MetadataMap `json:"metadata,omitempty"`
	Source   string             `json:"source,omitempty"`
	Stale    bool               `json:"stale,omitempty"`
}

type ShowMetadataRequest struct {
	IMDBID string `json:"imdbId"`
}

type ShowMetadataResponse struct {
	Found    bool               `json:"found"`
	Metadata models.MetadataMap `json:"metadata,omitempty"`
	Source   string             `json:"source,omitempty"`
	Stale    bool               `json:"stale,omitempty"`
}

type EpisodeMetadataRequest struct {
	IMDBID string `json:"imdbId"`
}

type EpisodeMetadataResponse struct {
	Found      bool               `json:"found"`
	ShowIMDBID string             `json:"showImdbId,omitempty"`
	Show       models.MetadataMap `json:"show,omitempty"`
	Episode    models.MetaValue   `json:"episode,omitempty"`
	Source     string             `json:"source,omitempty"`
}

type ShowSeasonsRequest struct {
	IMDBID string `json:"imdbId"`
}

type ShowSeasonsResponse struct {
	Found   bool                         `json:"found"`
	Seasons map[string]models.SeasonInfo `json:"seasons,omitempty"`
	Source  string                       `json:"source,omitempty"`
}

type ReleaseDatesRequest struct {
	IMDBID string `json:"imdbId"`
}

type ReleaseDatesResponse struct {
	Found        bool             `json:"found"`
	ReleaseDates models.MetaValue `json:"releaseDates,omitempty"`
	Source       string           `json:"source,omitempty"`
}

type TMDBToIMDBRequest struct {
	TMDBID int64 `json:"tmdbId"`
}

type TMDBToIMDBResponse struct {
	Found  bool   `json:"found"`
	IMDBID string `json:"imdbId,omitempty"`
	Source string `json:"source,omitempty"`
}

type BatchMetadataRequest struct {
	IMDBIDs []string `json:"imdbIds"`
}

// BatchMetadataEntry is one item's stored metadata within a batch response.
type BatchMetadataEntry struct {
	Metadata models.MetadataMap `json:"metadata"`
	Kind     string             `json:"type"`
	Stale    bool               `json:"stale,omitempty"`
}

type BatchMetadataResponse struct {
	Results map[string]BatchMetadataEntry `json:"results"`
}
