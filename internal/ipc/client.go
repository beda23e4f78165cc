package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the metadata service.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the RPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// GetMovieMetadata fetches a movie's metadata by IMDb ID.
func (c *Client) GetMovieMetadata(imdbID string) (*MovieMetadataResponse, error) {
	var resp MovieMetadataResponse
	if err := c.client.Call("Battery.GetMovieMetadata", MovieMetadataRequest{IMDBID: imdbID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetShowMetadata fetches a show's metadata by IMDb ID.
func (c *Client) GetShowMetadata(imdbID string) (*ShowMetadataResponse, error) {
	var resp ShowMetadataResponse
	if err := c.client.Call("Battery.GetShowMetadata", ShowMetadataRequest{IMDBID: imdbID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetEpisodeMetadata resolves an episode-level IMDb ID to its parent show.
func (c *Client) GetEpisodeMetadata(imdbID string) (*EpisodeMetadataResponse, error) {
	var resp EpisodeMetadataResponse
	if err := c.client.Call("Battery.GetEpisodeMetadata", EpisodeMetadataRequest{IMDBID: imdbID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetShowSeasons fetches a show's seasons and episodes.
func (c *Client) GetShowSeasons(imdbID string) (*ShowSeasonsResponse, error) {
	var resp ShowSeasonsResponse
	if err := c.client.Call("Battery.GetShowSeasons", ShowSeasonsRequest{IMDBID: imdbID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetReleaseDates fetches a movie's release date structure.
func (c *Client) GetReleaseDates(imdbID string) (*ReleaseDatesResponse, error) {
	var resp ReleaseDatesResponse
	if err := c.client.Call("Battery.GetReleaseDates", ReleaseDatesRequest{IMDBID: imdbID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TMDbToIMDb resolves a TMDB ID to its IMDb counterpart.
func (c *Client) TMDbToIMDb(tmdbID int64) (*TMDBToIMDBResponse, error) {
	var resp TMDBToIMDBResponse
	if err := c.client.Call("Battery.TMDbToIMDb", TMDBToIMDBRequest{TMDBID: tmdbID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchGetMetadata fetches stored metadata for several IMDb IDs at once.
// IDs with no stored data are absent from the result map.
func (c *Client) BatchGetMetadata(imdbIDs []string) (*BatchMetadataResponse, error) {
	var resp BatchMetadataResponse
	if err := c.client.Call("Battery.BatchGetMetadata", BatchMetadataRequest{IMDBIDs: imdbIDs}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
