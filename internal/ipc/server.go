package ipc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"metabattery/models"
	metadatapkg "metabattery/services/metadata"
)

type batteryService interface {
	GetMetadata(ctx context.Context, imdbID string) (*models.MetadataResult, error)
	GetSeasons(ctx context.Context, imdbID string) (*models.SeasonsResult, error)
	GetEpisodeBundle(ctx context.Context, episodeIMDBID string) (*models.EpisodeBundle, error)
	GetReleaseDates(ctx context.Context, imdbID string) (*models.ReleaseDatesResult, error)
	TMDBToIMDB(ctx context.Context, tmdbID int64) (string, string, error)
	BatchGetMetadata(imdbIDs []string) (map[string]*models.MetadataResult, error)
}

var _ batteryService = (*metadatapkg.Service)(nil)

// Server exposes metadata lookups via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the RPC server at the given socket path.
func NewServer(ctx context.Context, path string, svc batteryService) (*Server, error) {
	if svc == nil {
		return nil, errors.New("ipc server requires a metadata service")
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Battery", &service{svc: svc, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the server is closed.
func (s *Server) Serve() {
	log.Printf("[ipc] listening socket=%s", s.path)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				log.Printf("[ipc] accept failed err=%v", err)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		log.Printf("[ipc] socket cleanup failed socket=%s err=%v", s.path, err)
	}
}

type service struct {
	svc batteryService
	ctx context.Context
}

func (s *service) GetMovieMetadata(req MovieMetadataRequest, resp *MovieMetadataResponse) error {
	result, err := s.svc.GetMetadata(s.ctx, req.IMDBID)
	if err != nil {
		if errors.Is(err, metadatapkg.ErrNotFound) {
			resp.Found = false
			return nil
		}
		return err
	}
	resp.Found = true
	resp.Metadata = result.Metadata
	resp.Source = result.Source
	resp.Stale = result.Stale
	return nil
}

func (s *service) GetShowMetadata(req ShowMetadataRequest, resp *ShowMetadataResponse) error {
	result, err := s.svc.GetMetadata(s.ctx, req.IMDBID)
	if err != nil {
		if errors.Is(err, metadatapkg.ErrNotFound) {
			resp.Found = false
			return nil
		}
		return err
	}
	resp.Found = true
	resp.Metadata = result.Metadata
	resp.Source = result.Source
	resp.Stale = result.Stale
	return nil
}

func (s *service) GetEpisodeMetadata(req EpisodeMetadataRequest, resp *EpisodeMetadataResponse) error {
	bundle, err := s.svc.GetEpisodeBundle(s.ctx, req.IMDBID)
	if err != nil {
		if errors.Is(err, metadatapkg.ErrNotFound) {
			resp.Found = false
			return nil
		}
		return err
	}
	resp.Found = true
	resp.ShowIMDBID = bundle.ShowIMDBID
	resp.Show = bundle.Show
	resp.Episode = bundle.Episode
	resp.Source = bundle.Source
	return nil
}

func (s *service) GetShowSeasons(req ShowSeasonsRequest, resp *ShowSeasonsResponse) error {
	result, err := s.svc.GetSeasons(s.ctx, req.IMDBID)
	if err != nil {
		if errors.Is(err, metadatapkg.ErrNotFound) {
			resp.Found = false
			return nil
		}
		return err
	}
	resp.Found = true
	resp.Seasons = result.Seasons
	resp.Source = result.Source
	return nil
}

func (s *service) GetReleaseDates(req ReleaseDatesRequest, resp *ReleaseDatesResponse) error {
	result, err := s.svc.GetReleaseDates(s.ctx, req.IMDBID)
	if err != nil {
		if errors.Is(err, metadatapkg.ErrNotFound) {
			resp.Found = false
			return nil
		}
		return err
	}
	resp.Found = true
	resp.ReleaseDates = result.ReleaseDates
	resp.Source = result.Source
	return nil
}

func (s *service) TMDbToIMDb(req TMDBToIMDBRequest, resp *TMDBToIMDBResponse) error {
	imdbID, source, err := s.svc.TMDBToIMDB(s.ctx, req.TMDBID)
	if err != nil {
		if errors.Is(err, metadatapkg.ErrNotFound) {
			resp.Found = false
			return nil
		}
		return err
	}
	resp.Found = true
	resp.IMDBID = imdbID
	resp.Source = source
	return nil
}

func (s *service) BatchGetMetadata(req BatchMetadataRequest, resp *BatchMetadataResponse) error {
	results, err := s.svc.BatchGetMetadata(req.IMDBIDs)
	if err != nil {
		return err
	}
	resp.Results = make(map[string]BatchMetadataEntry, len(results))
	for id, result := range results {
		resp.Results[id] = BatchMetadataEntry{
			Metadata: result.Metadata,
			Kind:     result.Kind,
			Stale:    result.Stale,
		}
	}
	return nil
}
