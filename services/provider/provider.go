package provider

import (
	"context"
	"errors"
	"time"

	"metabattery/models"
)

// Sentinel errors returned by providers. ErrNotFound means the upstream
// definitively does not know the ID; ErrUnavailable means the upstream could
// not be reached or kept failing, so cached data should be served instead.
var (
	ErrNotFound    = errors.New("not found upstream")
	ErrUnavailable = errors.New("provider unavailable")
)

// MovieData is a fetched movie: identifying fields plus the full metadata
// key/value set to store.
type MovieData struct {
	IMDBID   string
	Title    string
	Year     *int
	Metadata models.MetadataMap
}

// ShowData is a fetched show, same shape as MovieData.
type ShowData struct {
	IMDBID   string
	Title    string
	Year     *int
	Metadata models.MetadataMap
}

// SeasonData is one season of a show's listing.
type SeasonData struct {
	Number       int
	EpisodeCount *int
	Episodes     []EpisodeData
}

// EpisodeData is one episode within a season listing.
type EpisodeData struct {
	Season     int
	Number     int
	IMDBID     string
	Title      string
	Overview   string
	Runtime    *int
	FirstAired *time.Time
}

// EpisodeBundle is the result of resolving an episode-level IMDb ID: the
// parent show plus the matched episode.
type EpisodeBundle struct {
	ShowIMDBID string
	Show       *ShowData
	Episode    EpisodeData
}

// Provider is the upstream metadata source consumed by the orchestrator.
type Provider interface {
	FetchMovie(ctx context.Context, imdbID string) (*MovieData, error)
	FetchShow(ctx context.Context, imdbID string) (*ShowData, error)
	FetchSeasons(ctx context.Context, imdbID string) ([]SeasonData, error)
	FetchEpisodes(ctx context.Context, imdbID string) ([]EpisodeData, error)
	FetchReleaseDates(ctx context.Context, imdbID string) (models.MetaValue, error)
	FetchPosterRef(ctx context.Context, imdbID string) (string, error)
	ResolveTMDBID(ctx context.Context, tmdbID int64) (string, error)
	FetchEpisodeBundle(ctx context.Context, episodeIMDBID string) (*EpisodeBundle, error)
}
