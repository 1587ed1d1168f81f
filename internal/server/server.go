package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"xmastree/internal/assetcache"
	"xmastree/internal/config"
	"xmastree/internal/ornament"
	"xmastree/internal/scene"
	"xmastree/internal/texture"
)

// placeholderSize is the edge length in pixels of the generated default
// texture.
const placeholderSize = 500

type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	composer *scene.Composer
	cache    *assetcache.Cache
	loader   *texture.Loader
	hub      *hub
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	seq      atomic.Uint64

	// applyMu serialises texture changes so that the default texture never
	// replaces an upload that landed first.
	applyMu       sync.Mutex
	defaultActive bool
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	params := scene.DefaultParams()
	params.Snow = scene.SnowParams{
		Count: cfg.Snow.Count,
		Seed:  cfg.Snow.Seed,
		Size:  cfg.Snow.Size,
		Color: cfg.Snow.Color,
	}
	composer, err := scene.NewComposer(params, logger)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}

	var provider assetcache.StorageProvider
	switch cfg.Cache.Storage {
	case config.StorageDisk:
		provider = assetcache.NewDiskProvider(cfg.Cache.Dir)
	default:
		provider = assetcache.NewMemoryProvider()
	}
	origin := assetcache.FileFetcher{Root: cfg.Assets.Root}
	cache, err := assetcache.New(cfg.Cache.Name, []string{cfg.Assets.DefaultTexture}, provider, origin, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		logger:   logger.With("component", "server"),
		composer: composer,
		cache:    cache,
		loader:   texture.NewLoader(cache, logger).LimitPixels(cfg.Upload.MaxPixels),
		hub:      newHub(),
	}, nil
}

// Prepare readies the asset cache and builds the untextured tree. It does not
// load the default texture.
func (s *Server) Prepare(ctx context.Context) error {
	if err := s.ensureDefaultAsset(); err != nil {
		return err
	}
	if err := s.cache.Install(ctx); err != nil {
		s.logger.Warn("asset cache install failed, serving from origin", "err", err)
	}
	if err := s.cache.Activate(); err != nil {
		s.logger.Warn("asset cache activation incomplete", "err", err)
	}
	s.composer.RebuildTree()
	return nil
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.Prepare(ctx); err != nil {
		return err
	}
	defer s.cache.Close()

	addr := fmt.Sprintf("%s:%d", s.cfg.ListenAddress, s.cfg.HTTPPort)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Shutdown())
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return nil
	})
	g.Go(func() error {
		s.loadDefault(gctx)
		return nil
	})
	if s.cfg.Assets.Watch {
		g.Go(func() error {
			s.watchAssets(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /scene", s.handleScene)
	mux.HandleFunc("GET /placements", s.handlePlacements)
	mux.HandleFunc("GET "+s.cfg.Assets.DefaultTexture, s.handleDefaultTexture)
	mux.HandleFunc("GET /texture", s.handleActiveTexture)
	mux.HandleFunc("POST /texture", s.handleUpload)
	mux.HandleFunc("GET /texture/tiles/{index}", s.handleTile)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// defaultAssetPath maps the default texture URL path into the asset root.
func (s *Server) defaultAssetPath() string {
	rel := strings.TrimPrefix(s.cfg.Assets.DefaultTexture, "/")
	return filepath.Clean(filepath.Join(s.cfg.Assets.Root, filepath.FromSlash(rel)))
}

// ensureDefaultAsset writes a generated placeholder when the asset root has
// no default texture yet.
func (s *Server) ensureDefaultAsset() error {
	path := s.defaultAssetPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat default texture: %w", err)
	}
	data, err := texture.EncodePNG(texture.Placeholder(placeholderSize, ornament.Grid).Image)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create asset directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write placeholder texture: %w", err)
	}
	s.logger.Info("no default texture found, placeholder written", "path", path)
	return nil
}

// loadDefault loads the default texture and applies it unless an upload is
// already showing. Failures leave the scene untextured.
func (s *Server) loadDefault(ctx context.Context) {
	path := s.cfg.Assets.DefaultTexture
	tex, err := texture.Await(ctx, s.loader.Load(ctx, path))
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("default texture unavailable", "path", path, "err", err)
			s.notifyError(path, err)
		}
		return
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if s.composer.Texture() != nil && !s.defaultActive {
		s.logger.Info("default texture superseded by upload", "path", path)
		return
	}
	s.composer.ApplyTexture(tex)
	s.defaultActive = true
}

// reloadDefault refreshes the cached default asset and re-applies it when it
// is the texture on show.
func (s *Server) reloadDefault(ctx context.Context) {
	path := s.cfg.Assets.DefaultTexture
	if err := s.cache.Refresh(ctx, path); err != nil {
		s.logger.Warn("default texture refresh failed", "path", path, "err", err)
		return
	}
	s.applyMu.Lock()
	active := s.defaultActive
	s.applyMu.Unlock()
	if !active {
		s.logger.Debug("default texture refreshed in cache only", "path", path)
		return
	}
	s.loadDefault(ctx)
}

func (s *Server) applyUpload(tex *texture.Texture) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.composer.ApplyTexture(tex)
	s.defaultActive = false
}

func (s *Server) notifyError(source string, err error) {
	msg, encErr := s.encodeEnvelope(MessageError, ErrorMessage{Source: source, Message: err.Error()})
	if encErr != nil {
		s.logger.Error("encode error message", "err", encErr)
		return
	}
	s.hub.broadcast(msg)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
