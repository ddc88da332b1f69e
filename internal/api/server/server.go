package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"momo-player/internal/config"
	"momo-player/internal/engine"
	plog "momo-player/internal/log"
	"momo-player/internal/player"
	"momo-player/internal/playlist"

	"momo-player/internal/api/handlers"
	"momo-player/internal/api/middleware"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg    *config.Config
	eng    *engine.Engine
	router *gin.Engine
	hub    *handlers.Hub
	log    zerolog.Logger

	unsubs []func()
}

func New(cfg *config.Config, eng *engine.Engine) *Server {
	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		eng:    eng,
		router: gin.New(),
		hub:    handlers.NewHub(eng.Player(), cfg.Server.AllowedOrigins),
		log:    plog.WithComponent("api"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.SilentLogger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	// "Authorization" must be allowed so the frontend can send the JWT
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}

	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes() {
	ctl := s.eng.Player()
	store := s.eng.Playlist()

	playlistHandler := handlers.NewPlaylistHandler(store, s.eng.Category())
	playerHandler := handlers.NewPlayerHandler(ctl, s.eng.NowPlaying, s.eng.History)

	// Push every state and playlist change to websocket clients.
	s.unsubs = append(s.unsubs,
		ctl.OnChange(func(st player.State) { s.hub.Broadcast("state", st) }),
		store.Subscribe(func(playlist.Change) { s.hub.Broadcast("playlist", playlistHandler.View()) }),
	)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "momo-player"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")

	// Without a secret the API is open, which is what a local kiosk wants.
	read := []gin.HandlerFunc{}
	write := []gin.HandlerFunc{}
	if s.cfg.Server.JWTSecret != "" {
		auth := middleware.RequireAuth([]byte(s.cfg.Server.JWTSecret))
		read = append(read, auth, middleware.RequireRole(middleware.RoleViewer, middleware.RoleOperator))
		write = append(write, auth, middleware.RequireRole(middleware.RoleOperator))
	}

	viewer := v1.Group("/", read...)
	{
		viewer.GET("/playlist", playlistHandler.GetPlaylist)
		viewer.GET("/player/state", playerHandler.GetState)
		viewer.GET("/player/now-playing", playerHandler.GetNowPlaying)
		viewer.GET("/player/history", playerHandler.GetHistory)
		viewer.GET("/player/events", s.hub.Serve)
	}

	operator := v1.Group("/", write...)
	{
		operator.POST("/playlist/select", playlistHandler.Select)
		operator.POST("/playlist/reorder", playlistHandler.Reorder)

		operator.POST("/player/toggle-play", playerHandler.TogglePlay())
		operator.POST("/player/toggle-mute", playerHandler.ToggleMute())
		operator.POST("/player/cycle-rate", playerHandler.CycleRate())
		operator.POST("/player/toggle-fullscreen", playerHandler.ToggleFullscreen())
		operator.POST("/player/volume", playerHandler.SetVolume)
		operator.POST("/player/skip", playerHandler.Skip)
		operator.POST("/player/scrub", playerHandler.Scrub)
		operator.POST("/player/keys", playerHandler.Key)
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("api server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Close drops the change subscriptions and disconnects websocket clients.
func (s *Server) Close() {
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
	s.hub.Close()
}
