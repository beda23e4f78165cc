package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"metabattery/models"
	metadatapkg "metabattery/services/metadata"
)

type metadataService interface {
	GetMetadata(ctx context.Context, imdbID string) (*models.MetadataResult, error)
	RefreshItem(ctx context.Context, imdbID string) error
	GetSeasons(ctx context.Context, imdbID string) (*models.SeasonsResult, error)
	GetEpisodes(ctx context.Context, imdbID string, season int) (map[string]models.EpisodeInfo, string, error)
	GetPoster(ctx context.Context, imdbID string) ([]byte, string, error)
	GetEpisodeBundle(ctx context.Context, episodeIMDBID string) (*models.EpisodeBundle, error)
	GetReleaseDates(ctx context.Context, imdbID string) (*models.ReleaseDatesResult, error)
	TMDBToIMDB(ctx context.Context, tmdbID int64) (string, string, error)
	BatchGetMetadata(imdbIDs []string) (map[string]*models.MetadataResult, error)
	Stats() (*models.StoreStats, error)
	DeleteItem(imdbID string) (bool, error)
}

var _ metadataService = (*metadatapkg.Service)(nil)

type MetadataHandler struct {
	Service metadataService
}

func NewMetadataHandler(s metadataService) *MetadataHandler {
	return &MetadataHandler{Service: s}
}

// RegisterRoutes attaches the metadata API to the router.
func (h *MetadataHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/metadata/batch", h.BatchMetadata).Methods(http.MethodPost)
	r.HandleFunc("/api/metadata/{imdbID}", h.Metadata).Methods(http.MethodGet)
	r.HandleFunc("/api/seasons/{imdbID}", h.Seasons).Methods(http.MethodGet)
	r.HandleFunc("/api/episodes/{imdbID}/{season:[0-9]+}", h.Episodes).Methods(http.MethodGet)
	r.HandleFunc("/api/poster/{imdbID}", h.Poster).Methods(http.MethodGet)
	r.HandleFunc("/api/episode/{imdbID}", h.Episode).Methods(http.MethodGet)
	r.HandleFunc("/api/release_dates/{imdbID}", h.ReleaseDates).Methods(http.MethodGet)
	r.HandleFunc("/api/tmdb_to_imdb/{tmdbID}", h.TMDBToIMDB).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", h.Stats).Methods(http.MethodGet)
	r.HandleFunc("/api/items/{imdbID}", h.DeleteItem).Methods(http.MethodDelete)
}

func (h *MetadataHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	imdbID := mux.Vars(r)["imdbID"]
	if !validIMDBID(imdbID) {
		writeError(w, http.StatusBadRequest, "invalid imdb id")
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		if err := h.Service.RefreshItem(r.Context(), imdbID); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	result, err := h.Service.GetMetadata(r.Context(), imdbID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if kind := r.URL.Query().Get("type"); kind != "" && result.Kind != kind {
		writeError(w, http.StatusNotFound, "item is not a "+kind)
		return
	}
	if keys := r.URL.Query().Get("keys"); keys != "" {
		filtered := make(models.MetadataMap)
		for _, key := range strings.Split(keys, ",") {
			if v, ok := result.Metadata[key]; ok {
				filtered[key] = v
			}
		}
		result.Metadata = filtered
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MetadataHandler) Seasons(w http.ResponseWriter, r *http.Request) {
	imdbID := mux.Vars(r)["imdbID"]
	if !validIMDBID(imdbID) {
		writeError(w, http.StatusBadRequest, "invalid imdb id")
		return
	}

	result, err := h.Service.GetSeasons(r.Context(), imdbID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// EpisodesResponse is one season's episodes keyed by episode number.
type EpisodesResponse struct {
	Episodes map[string]models.EpisodeInfo `json:"episodes"`
	Source   string                        `json:"source"`
}

func (h *MetadataHandler) Episodes(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	imdbID := vars["imdbID"]
	if !validIMDBID(imdbID) {
		writeError(w, http.StatusBadRequest, "invalid imdb id")
		return
	}
	season, err := strconv.Atoi(vars["season"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid season number")
		return
	}

	episodes, source, err := h.Service.GetEpisodes(r.Context(), imdbID, season)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EpisodesResponse{Episodes: episodes, Source: source})
}

func (h *MetadataHandler) Poster(w http.ResponseWriter, r *http.Request) {
	imdbID := mux.Vars(r)["imdbID"]
	if !validIMDBID(imdbID) {
		writeError(w, http.StatusBadRequest, "invalid imdb id")
		return
	}

	image, source, err := h.Service.GetPoster(r.Context(), imdbID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Source", source)
	w.Header().Set("Content-Length", strconv.Itoa(len(image)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(image); err != nil {
		log.Printf("[handlers] poster write failed imdb=%s err=%v", imdbID, err)
	}
}

func (h *MetadataHandler) Episode(w http.ResponseWriter, r *http.Request) {
	imdbID := mux.Vars(r)["imdbID"]
	if !validIMDBID(imdbID) {
		writeError(w, http.StatusBadRequest, "invalid imdb id")
		return
	}

	bundle, err := h.Service.GetEpisodeBundle(r.Context(), imdbID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (h *MetadataHandler) ReleaseDates(w http.ResponseWriter, r *http.Request) {
	imdbID := mux.Vars(r)["imdbID"]
	if !validIMDBID(imdbID) {
		writeError(w, http.StatusBadRequest, "invalid imdb id")
		return
	}

	result, err := h.Service.GetReleaseDates(r.Context(), imdbID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TMDBToIMDBResponse is the resolution payload.
type TMDBToIMDBResponse struct {
	IMDBID string `json:"imdbId"`
	Source string `json:"source"`
}

func (h *MetadataHandler) TMDBToIMDB(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := strconv.ParseInt(mux.Vars(r)["tmdbID"], 10, 64)
	if err != nil || tmdbID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid tmdb id")
		return
	}

	imdbID, source, err := h.Service.TMDBToIMDB(r.Context(), tmdbID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TMDBToIMDBResponse{IMDBID: imdbID, Source: source})
}

// BatchMetadataRequest asks for stored metadata for several items at once.
type BatchMetadataRequest struct {
	IMDBIDs []string `json:"imdbIds"`
}

// BatchMetadataResponse carries per-ID results; IDs not in the store are
// absent. A batch read never reaches upstream, so the source is always
// local.
type BatchMetadataResponse struct {
	Results map[string]*models.MetadataResult `json:"results"`
	Source  string                            `json:"source"`
}

func (h *MetadataHandler) BatchMetadata(w http.ResponseWriter, r *http.Request) {
	var req BatchMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IMDBIDs) == 0 {
		writeError(w, http.StatusBadRequest, "imdbIds required")
		return
	}

	results, err := h.Service.BatchGetMetadata(req.IMDBIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchMetadataResponse{Results: results, Source: models.SourceLocal})
}

func (h *MetadataHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *MetadataHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	imdbID := mux.Vars(r)["imdbID"]
	if !validIMDBID(imdbID) {
		writeError(w, http.StatusBadRequest, "invalid imdb id")
		return
	}

	deleted, err := h.Service.DeleteItem(imdbID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validIMDBID(id string) bool {
	if !strings.HasPrefix(id, "tt") || len(id) < 7 {
		return false
	}
	for _, c := range id[2:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[handlers] response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeServiceError maps service errors onto status codes: unknown IDs are
// 404, upstream failures without usable local data are 502, anything else is
// a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, metadatapkg.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, metadatapkg.ErrUpstream):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("[handlers] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
