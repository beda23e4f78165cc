package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"metabattery/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func testClient(rt roundTripFunc) *TraktClient {
	c := NewTraktClient(config.TraktSettings{ClientID: "test-client", AccessToken: "test-token"}, 10*time.Second)
	c.httpClient = &http.Client{Transport: rt}
	return c
}

func TestFetchMovie(t *testing.T) {
	var gotPath string
	client := testClient(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		if req.Header.Get("trakt-api-key") != "test-client" {
			t.Errorf("missing trakt-api-key header")
		}
		if req.Header.Get("trakt-api-version") != "2" {
			t.Errorf("missing trakt-api-version header")
		}
		return jsonResponse(http.StatusOK, `{
			"title": "The Shawshank Redemption",
			"year": 1994,
			"ids": {"trakt": 1, "imdb": "tt0111161", "tmdb": 278},
			"overview": "Framed in the 1940s...",
			"rating": 9.3
		}`), nil
	})

	movie, err := client.FetchMovie(context.Background(), "tt0111161")
	if err != nil {
		t.Fatalf("FetchMovie: %v", err)
	}
	if gotPath != "/movies/tt0111161" {
		t.Errorf("path = %q, want /movies/tt0111161", gotPath)
	}
	if movie.Title != "The Shawshank Redemption" {
		t.Errorf("Title = %q", movie.Title)
	}
	if movie.Year == nil || *movie.Year != 1994 {
		t.Errorf("Year = %v, want 1994", movie.Year)
	}
	if movie.IMDBID != "tt0111161" {
		t.Errorf("IMDBID = %q", movie.IMDBID)
	}
	rating, ok := movie.Metadata["rating"]
	if !ok {
		t.Fatal("metadata missing rating key")
	}
	if rating.Num.String() != "9.3" {
		t.Errorf("rating = %s, want 9.3 verbatim", rating.Num)
	}
}

func TestFetchMovieNotFound(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, ""), nil
	})

	_, err := client.FetchMovie(context.Background(), "tt0000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchMovieRetriesTransientThenUnavailable(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	client := testClient(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return jsonResponse(http.StatusBadGateway, ""), nil
	})

	_, err := client.FetchMovie(context.Background(), "tt0111161")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 attempts before giving up", calls)
	}
}

func TestFetchMovieRecoversAfterTransientFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	client := testClient(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return jsonResponse(http.StatusTooManyRequests, ""), nil
		}
		return jsonResponse(http.StatusOK, `{"title": "x", "ids": {"imdb": "tt1"}}`), nil
	})

	movie, err := client.FetchMovie(context.Background(), "tt1")
	if err != nil {
		t.Fatalf("FetchMovie: %v", err)
	}
	if movie.Title != "x" {
		t.Errorf("Title = %q", movie.Title)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestFetchMovieMalformedYearIsNil(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"title": "x", "year": "not-a-year"}`), nil
	})

	movie, err := client.FetchMovie(context.Background(), "tt1")
	if err != nil {
		t.Fatalf("FetchMovie: %v", err)
	}
	if movie.Year != nil {
		t.Errorf("Year = %v, want nil for malformed value", *movie.Year)
	}
	// The raw value is still kept in the metadata map untouched.
	if got, _ := movie.Metadata["year"].AsString(); got != "not-a-year" {
		t.Errorf("metadata year = %q, want raw string preserved", got)
	}
}

func TestFetchSeasonsSkipsSpecials(t *testing.T) {
	var gotQuery string
	client := testClient(func(req *http.Request) (*http.Response, error) {
		gotQuery = req.URL.RawQuery
		return jsonResponse(http.StatusOK, `[
			{"number": 0, "episode_count": 5, "episodes": [{"season": 0, "number": 1, "title": "Special"}]},
			{"number": 1, "episode_count": 2, "episodes": [
				{"season": 1, "number": 1, "title": "Pilot", "overview": "First ep", "runtime": 58,
				 "first_aired": "2008-01-20T02:00:00.000Z", "ids": {"imdb": "tt0959621"}},
				{"season": 1, "number": 2, "title": "Second", "runtime": null}
			]}
		]`), nil
	})

	seasons, err := client.FetchSeasons(context.Background(), "tt0903747")
	if err != nil {
		t.Fatalf("FetchSeasons: %v", err)
	}
	if gotQuery != "extended=full,episodes" {
		t.Errorf("query = %q, want extended=full,episodes", gotQuery)
	}
	if len(seasons) != 1 {
		t.Fatalf("got %d seasons, want 1 (season 0 skipped)", len(seasons))
	}
	season := seasons[0]
	if season.Number != 1 || *season.EpisodeCount != 2 {
		t.Errorf("season = %+v", season)
	}
	if len(season.Episodes) != 2 {
		t.Fatalf("got %d episodes, want 2", len(season.Episodes))
	}
	pilot := season.Episodes[0]
	if pilot.Title != "Pilot" || pilot.IMDBID != "tt0959621" || *pilot.Runtime != 58 {
		t.Errorf("pilot = %+v", pilot)
	}
	if pilot.FirstAired == nil || !pilot.FirstAired.Equal(time.Date(2008, 1, 20, 2, 0, 0, 0, time.UTC)) {
		t.Errorf("FirstAired = %v", pilot.FirstAired)
	}
	if season.Episodes[1].Runtime != nil {
		t.Errorf("null runtime should stay nil")
	}
}

func TestResolveTMDBID(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/search/tmdb/278" {
			t.Errorf("path = %q", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `[
			{"type": "movie", "score": 1000, "movie": {"title": "The Shawshank Redemption", "ids": {"imdb": "tt0111161", "tmdb": 278}}}
		]`), nil
	})

	imdbID, err := client.ResolveTMDBID(context.Background(), 278)
	if err != nil {
		t.Fatalf("ResolveTMDBID: %v", err)
	}
	if imdbID != "tt0111161" {
		t.Errorf("imdbID = %q", imdbID)
	}
}

func TestResolveTMDBIDEmptyResult(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `[]`), nil
	})

	_, err := client.ResolveTMDBID(context.Background(), 99999999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchEpisodeBundle(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/search/imdb/tt1232244" {
			t.Errorf("path = %q", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `[
			{"type": "episode",
			 "episode": {"season": 2, "number": 1, "title": "Seven Thirty-Seven", "ids": {"imdb": "tt1232244"}},
			 "show": {"title": "Breaking Bad", "year": 2008, "ids": {"imdb": "tt0903747"}, "aired_episodes": 62}}
		]`), nil
	})

	bundle, err := client.FetchEpisodeBundle(context.Background(), "tt1232244")
	if err != nil {
		t.Fatalf("FetchEpisodeBundle: %v", err)
	}
	if bundle.ShowIMDBID != "tt0903747" {
		t.Errorf("ShowIMDBID = %q", bundle.ShowIMDBID)
	}
	if bundle.Show.Title != "Breaking Bad" {
		t.Errorf("show title = %q", bundle.Show.Title)
	}
	if bundle.Episode.Season != 2 || bundle.Episode.Number != 1 {
		t.Errorf("episode = %+v", bundle.Episode)
	}
}

func TestFetchPosterRef(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		t.Fatal("poster ref must not hit the network")
		return nil, nil
	})

	if _, err := client.FetchPosterRef(context.Background(), "tt1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unset artwork URL should yield ErrNotFound, got %v", err)
	}

	client.artworkBaseURL = "https://img.example.com/poster/%s.jpg"
	ref, err := client.FetchPosterRef(context.Background(), "tt0111161")
	if err != nil {
		t.Fatalf("FetchPosterRef: %v", err)
	}
	if ref != "https://img.example.com/poster/tt0111161.jpg" {
		t.Errorf("ref = %q", ref)
	}
}
