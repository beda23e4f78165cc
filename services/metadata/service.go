package metadata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"metabattery/internal/database"
	"metabattery/models"
	"metabattery/services/provider"
)

// Errors surfaced to the facades. ErrNotFound means neither the store nor
// the upstream knows the ID; ErrUpstream means the upstream failed and no
// usable local data exists.
var (
	ErrNotFound = errors.New("item not found")
	ErrUpstream = errors.New("upstream unavailable")
)

const providerName = "trakt"

// releaseDatesKey is the metadata key the release date structure is stored
// under.
const releaseDatesKey = "release_dates"

// Service orchestrates reads between the local store and the upstream
// provider. Reads are served locally when fresh; stale or missing data
// triggers a provider fetch, and provider failures fall back to whatever is
// stored.
type Service struct {
	repo       *database.Repository
	provider   provider.Provider
	threshold  time.Duration
	httpClient *http.Client

	// In-flight refresh deduplication, keyed by IMDb ID
	inflightMu       sync.Mutex
	inflightRequests map[string]*inflightRequest
}

type inflightRequest struct {
	wg     sync.WaitGroup
	result *models.MetadataResult
	err    error
}

func NewService(repo *database.Repository, prov provider.Provider, threshold time.Duration) *Service {
	return &Service{
		repo:             repo,
		provider:         prov,
		threshold:        threshold,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		inflightRequests: make(map[string]*inflightRequest),
	}
}

// GetMetadata returns the full metadata map for an item, refreshing from the
// provider when the stored copy is missing or stale.
func (s *Service) GetMetadata(ctx context.Context, imdbID string) (*models.MetadataResult, error) {
	item, err := s.repo.GetItemByIMDB(imdbID)
	if err != nil {
		return nil, err
	}
	if item != nil {
		entries, err := s.repo.GetMetadata(item.ID)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			last := maxLastUpdated(entries)
			if !isStale(&last, s.threshold, time.Now()) {
				return buildResult(item, entries, models.SourceLocal, false), nil
			}
		}
	}
	return s.refreshMetadata(ctx, imdbID)
}

// refreshMetadata fetches an item from the provider, deduplicating
// concurrent refreshes of the same ID.
func (s *Service) refreshMetadata(ctx context.Context, imdbID string) (*models.MetadataResult, error) {
	s.inflightMu.Lock()
	if req, ok := s.inflightRequests[imdbID]; ok {
		s.inflightMu.Unlock()
		req.wg.Wait()
		return req.result, req.err
	}
	req := &inflightRequest{}
	req.wg.Add(1)
	s.inflightRequests[imdbID] = req
	s.inflightMu.Unlock()

	req.result, req.err = s.doRefresh(ctx, imdbID)
	req.wg.Done()

	s.inflightMu.Lock()
	delete(s.inflightRequests, imdbID)
	s.inflightMu.Unlock()

	return req.result, req.err
}

func (s *Service) doRefresh(ctx context.Context, imdbID string) (*models.MetadataResult, error) {
	fetched, err := s.fetchItem(ctx, imdbID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			if result, rerr := s.resolveEpisodeParent(ctx, imdbID); rerr == nil {
				return result, nil
			}
		}
		return s.serveLocalFallback(imdbID, err)
	}

	item, err := s.repo.EnsureItem(fetched.imdbID, fetched.title, fetched.kind, fetched.year)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertMetadata(item.ID, providerName, fetched.metadata); err != nil {
		return nil, err
	}

	if fetched.kind == models.KindShow {
		if err := s.refreshSeasons(ctx, item); err != nil {
			log.Printf("[metadata] seasons refresh failed imdb=%s err=%v", imdbID, err)
		}
	}

	log.Printf("[metadata] refreshed imdb=%s kind=%s keys=%d", imdbID, fetched.kind, len(fetched.metadata))
	entries, err := s.repo.GetMetadata(item.ID)
	if err != nil {
		return nil, err
	}
	return buildResult(item, entries, models.SourceRemote, false), nil
}

// resolveEpisodeParent handles IDs the movie and show endpoints both reject.
// Such an ID may belong to an individual episode; resolving it through the
// episode endpoint yields the parent show, whose metadata is stored and
// returned in place of the episode's.
func (s *Service) resolveEpisodeParent(ctx context.Context, episodeIMDBID string) (*models.MetadataResult, error) {
	bundle, err := s.provider.FetchEpisodeBundle(ctx, episodeIMDBID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.EnsureItem(bundle.ShowIMDBID, bundle.Show.Title, models.KindShow, bundle.Show.Year)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertMetadata(item.ID, providerName, bundle.Show.Metadata); err != nil {
		return nil, err
	}
	if err := s.refreshSeasons(ctx, item); err != nil {
		log.Printf("[metadata] listing fetch after episode resolution failed imdb=%s err=%v", bundle.ShowIMDBID, err)
	}

	log.Printf("[metadata] resolved episode id to parent show episode=%s show=%s", episodeIMDBID, bundle.ShowIMDBID)
	entries, err := s.repo.GetMetadata(item.ID)
	if err != nil {
		return nil, err
	}
	return buildResult(item, entries, models.SourceRemote, false), nil
}

type fetchedItem struct {
	imdbID   string
	title    string
	kind     string
	year     *int
	metadata models.MetadataMap
}

// fetchItem pulls full metadata for an unclassified ID: show first, then
// movie. A payload carrying an aired episode count is a show; a show hit
// without one is double-checked against the movie endpoint.
func (s *Service) fetchItem(ctx context.Context, imdbID string) (*fetchedItem, error) {
	show, err := s.provider.FetchShow(ctx, imdbID)
	if err == nil {
		if _, hasAired := show.Metadata["aired_episodes"]; !hasAired {
			if movie, merr := s.provider.FetchMovie(ctx, imdbID); merr == nil {
				return &fetchedItem{movie.IMDBID, movie.Title, models.KindMovie, movie.Year, movie.Metadata}, nil
			}
		}
		return &fetchedItem{show.IMDBID, show.Title, models.KindShow, show.Year, show.Metadata}, nil
	}
	if !errors.Is(err, provider.ErrNotFound) {
		return nil, err
	}

	movie, err := s.provider.FetchMovie(ctx, imdbID)
	if err != nil {
		return nil, err
	}
	return &fetchedItem{movie.IMDBID, movie.Title, models.KindMovie, movie.Year, movie.Metadata}, nil
}

// serveLocalFallback handles a failed provider fetch: stored data is served
// regardless of age, flagged stale when past the threshold. With nothing
// stored the provider error is translated for the facades.
func (s *Service) serveLocalFallback(imdbID string, fetchErr error) (*models.MetadataResult, error) {
	item, err := s.repo.GetItemByIMDB(imdbID)
	if err != nil {
		return nil, err
	}
	if item != nil {
		entries, err := s.repo.GetMetadata(item.ID)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			last := maxLastUpdated(entries)
			stale := isStale(&last, s.threshold, time.Now())
			log.Printf("[metadata] serving cached data after provider failure imdb=%s stale=%v err=%v", imdbID, stale, fetchErr)
			return buildResult(item, entries, models.SourceLocal, stale), nil
		}
	}
	return nil, translateProviderErr(fetchErr, imdbID)
}

func translateProviderErr(err error, id string) error {
	if errors.Is(err, provider.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

// GetSeasons returns a show's season and episode listing, refreshing from
// the provider when stale or missing.
func (s *Service) GetSeasons(ctx context.Context, imdbID string) (*models.SeasonsResult, error) {
	item, err := s.repo.GetItemByIMDB(imdbID)
	if err != nil {
		return nil, err
	}
	if item != nil {
		seasons, err := s.repo.GetSeasonsWithEpisodes(item.ID)
		if err != nil {
			return nil, err
		}
		if len(seasons) > 0 {
			// Stored listings serve without an age check. Keeping them
			// current is the background scheduler's job; readers should
			// not block on the provider for data that rarely changes.
			return seasonsResult(seasons, models.SourceLocal), nil
		}
	}

	// Nothing stored. Refresh the show's metadata alongside its listing so
	// the next read stays local.
	if result, err := s.refreshMetadata(ctx, imdbID); err != nil {
		return s.seasonsFallback(item, err)
	} else if result.Source == models.SourceLocal {
		// Refresh fell back to cached metadata; the listing is whatever
		// is stored.
		if item == nil {
			item, err = s.repo.GetItemByIMDB(imdbID)
			if err != nil {
				return nil, err
			}
		}
		return s.seasonsFallback(item, translateProviderErr(provider.ErrUnavailable, imdbID))
	}

	item, err = s.repo.GetItemByIMDB(imdbID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, imdbID)
	}
	seasons, err := s.repo.GetSeasonsWithEpisodes(item.ID)
	if err != nil {
		return nil, err
	}
	return seasonsResult(seasons, models.SourceRemote), nil
}

// GetEpisodes returns one season's episodes for a show.
func (s *Service) GetEpisodes(ctx context.Context, imdbID string, season int) (map[string]models.EpisodeInfo, string, error) {
	result, err := s.GetSeasons(ctx, imdbID)
	if err != nil {
		return nil, "", err
	}
	info, ok := result.Seasons[strconv.Itoa(season)]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s season %d", ErrNotFound, imdbID, season)
	}
	return info.Episodes, result.Source, nil
}

func (s *Service) seasonsFallback(item *models.Item, refreshErr error) (*models.SeasonsResult, error) {
	if item == nil {
		return nil, refreshErr
	}
	seasons, err := s.repo.GetSeasonsWithEpisodes(item.ID)
	if err != nil {
		return nil, err
	}
	if len(seasons) == 0 {
		return nil, refreshErr
	}
	log.Printf("[metadata] serving cached seasons after provider failure imdb=%s", item.IMDBID)
	return seasonsResult(seasons, models.SourceLocal), nil
}

// refreshSeasons pulls the full listing for a show and merges it into the
// store.
func (s *Service) refreshSeasons(ctx context.Context, item *models.Item) error {
	seasons, err := s.provider.FetchSeasons(ctx, item.IMDBID)
	if err != nil {
		return err
	}
	return s.storeSeasons(item.ID, seasons)
}

func (s *Service) storeSeasons(itemID int64, seasons []provider.SeasonData) error {
	rows := make([]database.SeasonWithEpisodes, 0, len(seasons))
	for _, season := range seasons {
		row := database.SeasonWithEpisodes{
			Season: models.Season{SeasonNumber: season.Number, EpisodeCount: season.EpisodeCount},
		}
		for _, ep := range season.Episodes {
			row.Episodes = append(row.Episodes, models.Episode{
				EpisodeNumber: ep.Number,
				IMDBID:        ep.IMDBID,
				Title:         ep.Title,
				Overview:      ep.Overview,
				Runtime:       ep.Runtime,
				FirstAired:    ep.FirstAired,
			})
		}
		rows = append(rows, row)
	}
	return s.repo.UpsertSeasonsAndEpisodes(itemID, rows)
}

// GetPoster returns an item's poster image, downloading and storing it on
// first access. The source tag tells whether the bytes came from the store
// or were just fetched.
func (s *Service) GetPoster(ctx context.Context, imdbID string) ([]byte, string, error) {
	item, err := s.repo.GetItemByIMDB(imdbID)
	if err != nil {
		return nil, "", err
	}
	if item != nil {
		poster, err := s.repo.GetPoster(item.ID)
		if err != nil {
			return nil, "", err
		}
		if poster != nil {
			return poster.ImageData, models.SourceLocal, nil
		}
	}

	ref, err := s.provider.FetchPosterRef(ctx, imdbID)
	if err != nil {
		return nil, "", translateProviderErr(err, imdbID)
	}
	raw, err := s.downloadPoster(ctx, ref)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	image, err := normalizePoster(raw)
	if err != nil {
		return nil, "", err
	}

	if item == nil {
		item, err = s.repo.EnsureItem(imdbID, "", "", nil)
		if err != nil {
			return nil, "", err
		}
	}
	if err := s.repo.UpsertPoster(item.ID, image); err != nil {
		return nil, "", err
	}
	log.Printf("[metadata] stored poster imdb=%s bytes=%d", imdbID, len(image))
	return image, models.SourceRemote, nil
}

// TMDBToIMDB resolves a TMDB numeric ID to an IMDb ID. Resolutions are
// stored permanently; after the first hit the mapping never touches the
// provider again.
func (s *Service) TMDBToIMDB(ctx context.Context, tmdbID int64) (string, string, error) {
	mapping, err := s.repo.GetMapping(tmdbID)
	if err != nil {
		return "", "", err
	}
	if mapping != nil {
		return mapping.IMDBID, models.SourceLocal, nil
	}

	imdbID, err := s.provider.ResolveTMDBID(ctx, tmdbID)
	if err != nil {
		return "", "", translateProviderErr(err, strconv.FormatInt(tmdbID, 10))
	}
	if err := s.repo.SaveMapping(tmdbID, imdbID); err != nil {
		return "", "", err
	}
	log.Printf("[metadata] learned mapping tmdb=%d imdb=%s", tmdbID, imdbID)
	return imdbID, models.SourceRemote, nil
}

// GetEpisodeBundle resolves an episode-level IMDb ID to its parent show's
// metadata plus the matched episode. The resolved show and its full listing
// are stored so later lookups are purely local.
func (s *Service) GetEpisodeBundle(ctx context.Context, episodeIMDBID string) (*models.EpisodeBundle, error) {
	show, season, episode, err := s.repo.FindShowByEpisodeIMDB(episodeIMDBID)
	if err != nil {
		return nil, err
	}
	if show != nil {
		entries, err := s.repo.GetMetadata(show.ID)
		if err != nil {
			return nil, err
		}
		return &models.EpisodeBundle{
			ShowIMDBID: show.IMDBID,
			Show:       entriesToMap(entries),
			Episode:    episodeValue(season.SeasonNumber, *episode),
			Source:     models.SourceLocal,
		}, nil
	}

	bundle, err := s.provider.FetchEpisodeBundle(ctx, episodeIMDBID)
	if err != nil {
		return nil, translateProviderErr(err, episodeIMDBID)
	}

	item, err := s.repo.EnsureItem(bundle.ShowIMDBID, bundle.Show.Title, models.KindShow, bundle.Show.Year)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertMetadata(item.ID, providerName, bundle.Show.Metadata); err != nil {
		return nil, err
	}
	if err := s.refreshSeasons(ctx, item); err != nil {
		log.Printf("[metadata] listing fetch after episode resolution failed imdb=%s err=%v", bundle.ShowIMDBID, err)
	}

	return &models.EpisodeBundle{
		ShowIMDBID: bundle.ShowIMDBID,
		Show:       bundle.Show.Metadata,
		Episode: episodeValue(bundle.Episode.Season, models.Episode{
			EpisodeNumber: bundle.Episode.Number,
			IMDBID:        bundle.Episode.IMDBID,
			Title:         bundle.Episode.Title,
			Overview:      bundle.Episode.Overview,
			Runtime:       bundle.Episode.Runtime,
			FirstAired:    bundle.Episode.FirstAired,
		}),
		Source: models.SourceRemote,
	}, nil
}

// GetReleaseDates returns a movie's per-country release structure, fetching
// and storing it on first access or when stale.
func (s *Service) GetReleaseDates(ctx context.Context, imdbID string) (*models.ReleaseDatesResult, error) {
	item, err := s.repo.GetItemByIMDB(imdbID)
	if err != nil {
		return nil, err
	}
	var stored *models.MetadataEntry
	if item != nil {
		entries, err := s.repo.GetMetadata(item.ID)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			if entries[i].Key == releaseDatesKey {
				stored = &entries[i]
				break
			}
		}
		if stored != nil && !isStale(&stored.LastUpdated, s.threshold, time.Now()) {
			return &models.ReleaseDatesResult{ReleaseDates: stored.Value, Source: models.SourceLocal}, nil
		}
	}

	dates, err := s.provider.FetchReleaseDates(ctx, imdbID)
	if err != nil {
		if stored != nil {
			log.Printf("[metadata] serving cached release dates after provider failure imdb=%s", imdbID)
			return &models.ReleaseDatesResult{ReleaseDates: stored.Value, Source: models.SourceLocal}, nil
		}
		return nil, translateProviderErr(err, imdbID)
	}

	if item == nil {
		item, err = s.repo.EnsureItem(imdbID, "", "", nil)
		if err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpsertMetadata(item.ID, providerName, models.MetadataMap{releaseDatesKey: dates}); err != nil {
		return nil, err
	}
	return &models.ReleaseDatesResult{ReleaseDates: dates, Source: models.SourceRemote}, nil
}

// BatchGetMetadata returns stored metadata for each requested ID. This is a
// bulk local read: IDs not in the store are simply absent from the result
// and the provider is never consulted.
func (s *Service) BatchGetMetadata(imdbIDs []string) (map[string]*models.MetadataResult, error) {
	results := make(map[string]*models.MetadataResult, len(imdbIDs))
	for _, imdbID := range imdbIDs {
		item, err := s.repo.GetItemByIMDB(imdbID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			continue
		}
		entries, err := s.repo.GetMetadata(item.ID)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		last := maxLastUpdated(entries)
		stale := isStale(&last, s.threshold, time.Now())
		results[imdbID] = buildResult(item, entries, models.SourceLocal, stale)
	}
	return results, nil
}

// RefreshItem forces a provider refresh for one item. Used by the background
// refresher.
func (s *Service) RefreshItem(ctx context.Context, imdbID string) error {
	result, err := s.refreshMetadata(ctx, imdbID)
	if err != nil {
		return err
	}
	if result.Source != models.SourceRemote {
		return fmt.Errorf("%w: refresh served cached data for %s", ErrUpstream, imdbID)
	}
	return nil
}

// StaleItems lists items due for a background refresh.
func (s *Service) StaleItems() ([]models.Item, error) {
	return s.repo.ListStaleItems(time.Now().Add(-s.threshold))
}

// Stats summarizes the store.
func (s *Service) Stats() (*models.StoreStats, error) {
	return s.repo.Stats()
}

// DeleteItem removes an item and everything attached to it.
func (s *Service) DeleteItem(imdbID string) (bool, error) {
	return s.repo.DeleteItem(imdbID)
}

func maxLastUpdated(entries []models.MetadataEntry) time.Time {
	var max time.Time
	for _, e := range entries {
		if e.LastUpdated.After(max) {
			max = e.LastUpdated
		}
	}
	return max
}

func entriesToMap(entries []models.MetadataEntry) models.MetadataMap {
	m := make(models.MetadataMap, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}

func buildResult(item *models.Item, entries []models.MetadataEntry, source string, stale bool) *models.MetadataResult {
	return &models.MetadataResult{
		Metadata: entriesToMap(entries),
		Source:   source,
		Kind:     item.Kind,
		Stale:    stale,
	}
}

func seasonsResult(seasons []database.SeasonWithEpisodes, source string) *models.SeasonsResult {
	result := &models.SeasonsResult{
		Seasons: make(map[string]models.SeasonInfo, len(seasons)),
		Source:  source,
	}
	for _, se := range seasons {
		info := models.SeasonInfo{
			EpisodeCount: se.Season.EpisodeCount,
			Episodes:     make(map[string]models.EpisodeInfo, len(se.Episodes)),
		}
		for _, ep := range se.Episodes {
			epInfo := models.EpisodeInfo{
				Title:    ep.Title,
				Overview: ep.Overview,
				Runtime:  ep.Runtime,
				IMDBID:   ep.IMDBID,
			}
			if ep.FirstAired != nil {
				epInfo.FirstAired = ep.FirstAired.UTC().Format(time.RFC3339)
			}
			info.Episodes[strconv.Itoa(ep.EpisodeNumber)] = epInfo
		}
		result.Seasons[strconv.Itoa(se.Season.SeasonNumber)] = info
	}
	return result
}

func episodeValue(seasonNumber int, ep models.Episode) models.MetaValue {
	fields := []models.MetaField{
		{Key: "season", Value: models.NewInt(int64(seasonNumber))},
		{Key: "number", Value: models.NewInt(int64(ep.EpisodeNumber))},
		{Key: "title", Value: models.NewString(ep.Title)},
	}
	if ep.Overview != "" {
		fields = append(fields, models.MetaField{Key: "overview", Value: models.NewString(ep.Overview)})
	}
	if ep.Runtime != nil {
		fields = append(fields, models.MetaField{Key: "runtime", Value: models.NewInt(int64(*ep.Runtime))})
	} else {
		fields = append(fields, models.MetaField{Key: "runtime", Value: models.Null()})
	}
	if ep.FirstAired != nil {
		fields = append(fields, models.MetaField{Key: "first_aired", Value: models.NewString(ep.FirstAired.UTC().Format(time.RFC3339))})
	}
	if ep.IMDBID != "" {
		fields = append(fields, models.MetaField{Key: "imdb_id", Value: models.NewString(ep.IMDBID)})
	}
	return models.NewObject(fields...)
}
