package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"metabattery/config"
	"metabattery/models"
)

const (
	traktAPIBaseURL = "https://api.trakt.tv"
	traktAPIVersion = "2"
)

// TraktClient implements Provider against the Trakt API v2.
type TraktClient struct {
	httpClient     *http.Client
	baseURL        string
	clientID       string
	accessToken    string
	artworkBaseURL string
}

// NewTraktClient creates a Trakt-backed provider from settings.
func NewTraktClient(settings config.TraktSettings, timeout time.Duration) *TraktClient {
	return &TraktClient{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        traktAPIBaseURL,
		clientID:       settings.ClientID,
		accessToken:    settings.AccessToken,
		artworkBaseURL: settings.ArtworkBaseURL,
	}
}

// setTraktHeaders adds required Trakt API headers to a request
func (c *TraktClient) setTraktHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", traktAPIVersion)
	req.Header.Set("trakt-api-key", c.clientID)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
}

// get performs a GET with retries on transient failures. Network errors, 5xx
// and 429 are retried; 404 maps to ErrNotFound; anything still failing after
// the retries maps to ErrUnavailable.
func (c *TraktClient) get(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			c.setTraktHeaders(req)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("trakt api request: %w", err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusOK:
				body, err = io.ReadAll(resp.Body)
				if err != nil {
					return fmt.Errorf("read response: %w", err)
				}
				return nil
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(ErrNotFound)
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				return fmt.Errorf("trakt %s: %s", path, resp.Status)
			default:
				respBody, _ := io.ReadAll(resp.Body)
				return retry.Unrecoverable(fmt.Errorf("trakt %s failed: %s - %s", path, resp.Status, string(respBody)))
			}
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Printf("[trakt] request failed path=%s err=%v", path, err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return body, nil
}

// getObject fetches and decodes a single JSON object, preserving field order
// and numeric precision.
func (c *TraktClient) getObject(ctx context.Context, path string) (models.MetaValue, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return models.Null(), err
	}
	value, err := models.DecodeValue(string(body))
	if err != nil {
		return models.Null(), fmt.Errorf("decode trakt response: %w", err)
	}
	return value, nil
}

// FetchMovie fetches full movie metadata.
func (c *TraktClient) FetchMovie(ctx context.Context, imdbID string) (*MovieData, error) {
	obj, err := c.getObject(ctx, "/movies/"+imdbID+"?extended=full")
	if err != nil {
		return nil, err
	}
	if obj.Kind != models.KindObject {
		return nil, fmt.Errorf("unexpected movie payload for %s", imdbID)
	}
	return &MovieData{
		IMDBID:   imdbIDFrom(obj, imdbID),
		Title:    fieldString(obj, "title"),
		Year:     fieldInt(obj, "year"),
		Metadata: objectToMap(obj),
	}, nil
}

// FetchShow fetches full show metadata.
func (c *TraktClient) FetchShow(ctx context.Context, imdbID string) (*ShowData, error) {
	obj, err := c.getObject(ctx, "/shows/"+imdbID+"?extended=full")
	if err != nil {
		return nil, err
	}
	if obj.Kind != models.KindObject {
		return nil, fmt.Errorf("unexpected show payload for %s", imdbID)
	}
	return &ShowData{
		IMDBID:   imdbIDFrom(obj, imdbID),
		Title:    fieldString(obj, "title"),
		Year:     fieldInt(obj, "year"),
		Metadata: objectToMap(obj),
	}, nil
}

// FetchSeasons fetches a show's seasons with their episodes in a single
// request. Season 0 specials are skipped.
func (c *TraktClient) FetchSeasons(ctx context.Context, imdbID string) ([]SeasonData, error) {
	payload, err := c.getObject(ctx, "/shows/"+imdbID+"/seasons?extended=full,episodes")
	if err != nil {
		return nil, err
	}
	if payload.Kind != models.KindList {
		return nil, fmt.Errorf("unexpected seasons payload for %s", imdbID)
	}

	var seasons []SeasonData
	for _, seasonObj := range payload.List {
		number := fieldInt(seasonObj, "number")
		if number == nil || *number == 0 {
			continue
		}
		season := SeasonData{
			Number:       *number,
			EpisodeCount: fieldInt(seasonObj, "episode_count"),
		}
		if episodes, ok := seasonObj.Field("episodes"); ok && episodes.Kind == models.KindList {
			for _, epObj := range episodes.List {
				epNumber := fieldInt(epObj, "number")
				if epNumber == nil {
					continue
				}
				season.Episodes = append(season.Episodes, episodeFrom(epObj, *number, *epNumber))
			}
		}
		seasons = append(seasons, season)
	}
	return seasons, nil
}

// FetchEpisodes returns the flattened episode listing across all seasons.
func (c *TraktClient) FetchEpisodes(ctx context.Context, imdbID string) ([]EpisodeData, error) {
	seasons, err := c.FetchSeasons(ctx, imdbID)
	if err != nil {
		return nil, err
	}
	var episodes []EpisodeData
	for _, season := range seasons {
		episodes = append(episodes, season.Episodes...)
	}
	return episodes, nil
}

// FetchReleaseDates fetches a movie's per-country release list.
func (c *TraktClient) FetchReleaseDates(ctx context.Context, imdbID string) (models.MetaValue, error) {
	payload, err := c.getObject(ctx, "/movies/"+imdbID+"/releases")
	if err != nil {
		return models.Null(), err
	}
	return payload, nil
}

// FetchPosterRef returns the poster URL for an item. Trakt serves no images,
// so this is driven entirely by the configured artwork URL template.
func (c *TraktClient) FetchPosterRef(ctx context.Context, imdbID string) (string, error) {
	if c.artworkBaseURL == "" {
		return "", ErrNotFound
	}
	if strings.Contains(c.artworkBaseURL, "%s") {
		return fmt.Sprintf(c.artworkBaseURL, imdbID), nil
	}
	return strings.TrimRight(c.artworkBaseURL, "/") + "/" + imdbID, nil
}

// ResolveTMDBID resolves a TMDB numeric ID to an IMDb ID via Trakt search.
func (c *TraktClient) ResolveTMDBID(ctx context.Context, tmdbID int64) (string, error) {
	payload, err := c.getObject(ctx, fmt.Sprintf("/search/tmdb/%d?type=movie,show", tmdbID))
	if err != nil {
		return "", err
	}
	if payload.Kind != models.KindList || len(payload.List) == 0 {
		return "", ErrNotFound
	}
	for _, result := range payload.List {
		for _, key := range []string{"movie", "show"} {
			if media, ok := result.Field(key); ok {
				if imdb := imdbIDFrom(media, ""); imdb != "" {
					return imdb, nil
				}
			}
		}
	}
	return "", ErrNotFound
}

// FetchEpisodeBundle resolves an episode-level IMDb ID to its show and the
// matching episode via Trakt search.
func (c *TraktClient) FetchEpisodeBundle(ctx context.Context, episodeIMDBID string) (*EpisodeBundle, error) {
	payload, err := c.getObject(ctx, "/search/imdb/"+episodeIMDBID+"?type=episode&extended=full")
	if err != nil {
		return nil, err
	}
	if payload.Kind != models.KindList || len(payload.List) == 0 {
		return nil, ErrNotFound
	}

	result := payload.List[0]
	showObj, ok := result.Field("show")
	if !ok || showObj.Kind != models.KindObject {
		return nil, ErrNotFound
	}
	epObj, ok := result.Field("episode")
	if !ok || epObj.Kind != models.KindObject {
		return nil, ErrNotFound
	}

	show := &ShowData{
		IMDBID:   imdbIDFrom(showObj, ""),
		Title:    fieldString(showObj, "title"),
		Year:     fieldInt(showObj, "year"),
		Metadata: objectToMap(showObj),
	}
	if show.IMDBID == "" {
		return nil, ErrNotFound
	}

	seasonNum := 0
	if n := fieldInt(epObj, "season"); n != nil {
		seasonNum = *n
	}
	epNum := 0
	if n := fieldInt(epObj, "number"); n != nil {
		epNum = *n
	}
	episode := episodeFrom(epObj, seasonNum, epNum)
	if episode.IMDBID == "" {
		episode.IMDBID = episodeIMDBID
	}

	return &EpisodeBundle{ShowIMDBID: show.IMDBID, Show: show, Episode: episode}, nil
}

var _ Provider = (*TraktClient)(nil)

// objectToMap flattens a decoded object's top-level fields into a metadata
// map. Non-object payloads yield an empty map.
func objectToMap(obj models.MetaValue) models.MetadataMap {
	m := make(models.MetadataMap, len(obj.Fields))
	for _, f := range obj.Fields {
		m[f.Key] = f.Value
	}
	return m
}

func episodeFrom(epObj models.MetaValue, season, number int) EpisodeData {
	ep := EpisodeData{
		Season:   season,
		Number:   number,
		Title:    fieldString(epObj, "title"),
		Overview: fieldString(epObj, "overview"),
		Runtime:  fieldInt(epObj, "runtime"),
	}
	if ids, ok := epObj.Field("ids"); ok {
		ep.IMDBID = fieldString(ids, "imdb")
	}
	if aired := fieldString(epObj, "first_aired"); aired != "" {
		if t, err := time.Parse(time.RFC3339, aired); err == nil {
			utc := t.UTC()
			ep.FirstAired = &utc
		}
	}
	return ep
}

func imdbIDFrom(obj models.MetaValue, fallback string) string {
	if ids, ok := obj.Field("ids"); ok {
		if imdb := fieldString(ids, "imdb"); imdb != "" {
			return imdb
		}
	}
	return fallback
}

// fieldString returns the named string field, or "" if absent or not a
// string.
func fieldString(obj models.MetaValue, key string) string {
	v, ok := obj.Field(key)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// fieldInt returns the named integer field, or nil if absent or malformed.
func fieldInt(obj models.MetaValue, key string) *int {
	v, ok := obj.Field(key)
	if !ok {
		return nil
	}
	n, ok := v.AsInt()
	if !ok {
		return nil
	}
	i := int(n)
	return &i
}
