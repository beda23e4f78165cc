package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"metabattery/models"
)

func intPtr(n int) *int { return &n }

func TestUpsertSeasonsAndEpisodes_Idempotent(t *testing.T) {
	repo := setupTestDB(t).Repository
	item, err := repo.EnsureItem("tt0903747", "Breaking Bad", models.KindShow, nil)
	require.NoError(t, err)

	aired := time.Date(2008, 1, 20, 0, 0, 0, 0, time.UTC)
	listing := []SeasonWithEpisodes{{
		Season: models.Season{SeasonNumber: 1, EpisodeCount: intPtr(7)},
		Episodes: []models.Episode{
			{EpisodeNumber: 1, Title: "Pilot", IMDBID: "tt0959621", Runtime: intPtr(58), FirstAired: &aired},
			{EpisodeNumber: 2, Title: "Cat's in the Bag..."},
		},
	}}

	require.NoError(t, repo.UpsertSeasonsAndEpisodes(item.ID, listing))
	require.NoError(t, repo.UpsertSeasonsAndEpisodes(item.ID, listing))

	seasons, err := repo.GetSeasonsWithEpisodes(item.ID)
	require.NoError(t, err)
	require.Len(t, seasons, 1)
	require.Equal(t, 1, seasons[0].Season.SeasonNumber)
	require.Equal(t, 7, *seasons[0].Season.EpisodeCount)
	require.Len(t, seasons[0].Episodes, 2, "repeat upserts must not duplicate episodes")
}

func TestUpsertSeasonsAndEpisodes_PartialListingKeepsExisting(t *testing.T) {
	repo := setupTestDB(t).Repository
	item, err := repo.EnsureItem("tt0903747", "", models.KindShow, nil)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertSeasonsAndEpisodes(item.ID, []SeasonWithEpisodes{{
		Season: models.Season{SeasonNumber: 1},
		Episodes: []models.Episode{
			{EpisodeNumber: 1, Title: "Pilot"},
			{EpisodeNumber: 2, Title: "Second"},
		},
	}}))

	// A later listing that only mentions episode 1 must not remove episode 2.
	require.NoError(t, repo.UpsertSeasonsAndEpisodes(item.ID, []SeasonWithEpisodes{{
		Season: models.Season{SeasonNumber: 1},
		Episodes: []models.Episode{
			{EpisodeNumber: 1, Title: "Pilot (updated)", Runtime: intPtr(58)},
		},
	}}))

	seasons, err := repo.GetSeasonsWithEpisodes(item.ID)
	require.NoError(t, err)
	require.Len(t, seasons[0].Episodes, 2)
	require.Equal(t, "Pilot (updated)", seasons[0].Episodes[0].Title)
	require.Equal(t, 58, *seasons[0].Episodes[0].Runtime)
	require.Equal(t, "Second", seasons[0].Episodes[1].Title)
}

func TestFindShowByEpisodeIMDB(t *testing.T) {
	repo := setupTestDB(t).Repository
	item, err := repo.EnsureItem("tt0903747", "Breaking Bad", models.KindShow, nil)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertSeasonsAndEpisodes(item.ID, []SeasonWithEpisodes{{
		Season: models.Season{SeasonNumber: 2},
		Episodes: []models.Episode{
			{EpisodeNumber: 1, Title: "Seven Thirty-Seven", IMDBID: "tt1232244"},
		},
	}}))

	show, season, ep, err := repo.FindShowByEpisodeIMDB("tt1232244")
	require.NoError(t, err)
	require.NotNil(t, show)
	require.Equal(t, "tt0903747", show.IMDBID)
	require.Equal(t, 2, season.SeasonNumber)
	require.Equal(t, 1, ep.EpisodeNumber)
	require.Equal(t, "Seven Thirty-Seven", ep.Title)

	show, season, ep, err = repo.FindShowByEpisodeIMDB("tt9999999")
	require.NoError(t, err)
	require.Nil(t, show)
	require.Nil(t, season)
	require.Nil(t, ep)
}

func TestUpsertSeasonsAndEpisodes_NoIMDBIDCollision(t *testing.T) {
	repo := setupTestDB(t).Repository
	item, err := repo.EnsureItem("tt0903747", "", models.KindShow, nil)
	require.NoError(t, err)

	// Multiple episodes without IMDb IDs must not trip the unique index.
	require.NoError(t, repo.UpsertSeasonsAndEpisodes(item.ID, []SeasonWithEpisodes{{
		Season: models.Season{SeasonNumber: 1},
		Episodes: []models.Episode{
			{EpisodeNumber: 1},
			{EpisodeNumber: 2},
			{EpisodeNumber: 3},
		},
	}}))

	seasons, err := repo.GetSeasonsWithEpisodes(item.ID)
	require.NoError(t, err)
	require.Len(t, seasons[0].Episodes, 3)
}

func TestPosterRoundTrip(t *testing.T) {
	repo := setupTestDB(t).Repository
	item, err := repo.EnsureItem("tt0111161", "", "", nil)
	require.NoError(t, err)

	poster, err := repo.GetPoster(item.ID)
	require.NoError(t, err)
	require.Nil(t, poster)

	require.NoError(t, repo.UpsertPoster(item.ID, []byte{0xff, 0xd8, 0xff}))
	poster, err = repo.GetPoster(item.ID)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xd8, 0xff}, poster.ImageData)

	// Replacement keeps a single row per item.
	require.NoError(t, repo.UpsertPoster(item.ID, []byte{0x00}))
	poster, err = repo.GetPoster(item.ID)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00}, poster.ImageData)
}

func TestMappingIsPermanent(t *testing.T) {
	repo := setupTestDB(t).Repository

	mapping, err := repo.GetMapping(278)
	require.NoError(t, err)
	require.Nil(t, mapping)

	require.NoError(t, repo.SaveMapping(278, "tt0111161"))
	require.NoError(t, repo.SaveMapping(278, "tt9999999"), "re-save is a no-op, not an error")

	mapping, err = repo.GetMapping(278)
	require.NoError(t, err)
	require.Equal(t, "tt0111161", mapping.IMDBID, "first mapping wins and is never replaced")
}
