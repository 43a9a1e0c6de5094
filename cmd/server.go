package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"soundry/config"
	"soundry/handlers"
	"soundry/middleware"
	"soundry/services"
	"soundry/websocket"
)

const (
	shutdownTimeout = 10 * time.Second
	watchDebounce   = 500 * time.Millisecond
)

// Server holds the wired services behind the HTTP router
type Server struct {
	cfg     *config.Config
	hub     websocket.Hub
	root    services.Root
	jobs    services.JobQueue
	gateway *services.Gateway
	janitor *services.Janitor
	router  *gin.Engine
}

// NewServer wires every service over cfg.DownloadDir
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	root, err := services.NewRoot(cfg.DownloadDir)
	if err != nil {
		return nil, err
	}

	tools := services.Tools{Spotdl: cfg.SpotdlPath, Ytdlp: cfg.YtdlpPath}
	hub := websocket.NewHub()
	runner := services.NewRunner(root, cfg.JobTimeout, cfg.SearchTimeout)
	jobs := services.NewJobQueue(runner, tools, cfg.MaxConcurrentJobs, hub)
	gateway := services.NewGateway(
		root,
		services.NewCatalog(root),
		services.NewBundleStreamer(root),
		jobs,
		runner,
		tools,
	)

	janitor := services.NewJanitor(root, cfg.RetentionMaxAge, cfg.SweepInterval, log.Default())
	janitor.OnSweep(func(cutoff time.Time) {
		if n := jobs.Prune(cutoff); n > 0 {
			log.Printf("Pruned %d finished jobs", n)
		}
	})

	s := &Server{
		cfg:     cfg,
		hub:     hub,
		root:    root,
		jobs:    jobs,
		gateway: gateway,
		janitor: janitor,
	}
	s.router = s.setupRouter()
	return s, nil
}

// Router returns the configured gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logging())
	r.Use(middleware.CORS(s.cfg.CORSOrigins))

	artifactHandler := handlers.NewArtifactHandler(s.gateway)
	jobHandler := handlers.NewJobHandler(s.gateway, s.hub)
	searchHandler := handlers.NewSearchHandler(s.gateway)
	healthHandler := handlers.NewHealthHandler(s.root.Dir())
	cleanupHandler := handlers.NewCleanupHandler(s.janitor)

	r.GET("/health", healthHandler.HealthCheck)
	r.GET("/list", artifactHandler.ListArtifacts)
	r.DELETE("/delete", artifactHandler.DeleteArtifact)
	r.GET("/downloads/*filepath", artifactHandler.StreamFile)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", healthHandler.HealthCheck)
		apiGroup.GET("/status", healthHandler.APIStatus)
		apiGroup.POST("/cleanup", cleanupHandler.Cleanup)

		apiGroup.GET("/artifacts", artifactHandler.ListArtifacts)
		apiGroup.GET("/artifacts/:name", artifactHandler.GetArtifact)
		apiGroup.DELETE("/artifacts/:name", artifactHandler.DeleteArtifact)

		downloadGroup := apiGroup.Group("/download")
		{
			downloadGroup.POST("/zip", artifactHandler.DownloadBundle)
			downloadGroup.POST("/:source", jobHandler.Download)
		}

		jobsGroup := apiGroup.Group("/jobs")
		{
			jobsGroup.POST("", jobHandler.SubmitJob)
			jobsGroup.GET("", jobHandler.GetAllJobs)
			jobsGroup.GET("/:id", jobHandler.GetJob)
			jobsGroup.DELETE("/:id", jobHandler.CancelJob)
		}

		apiGroup.POST("/search", searchHandler.Search)
		apiGroup.GET("/search", searchHandler.Search)

		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("", jobHandler.Events)
			wsGroup.GET("/jobs/:id", jobHandler.JobEvents)
		}
	}

	return r
}

// Start launches the websocket hub and the job workers; both stop with ctx
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
	s.jobs.Start(ctx)
}

// Run starts the background services and serves HTTP until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.Start(ctx)
	go s.janitor.Run(ctx)

	watcher, err := services.NewWatcher(s.root, s.hub, watchDebounce, log.Default())
	if err != nil {
		log.Printf("Catalog watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Soundry web server starting on port %d (downloads in %s)", s.cfg.Port, s.root.Dir())
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

	log.Println("Shutting down server...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

// StartWebServer runs the server until SIGINT or SIGTERM
func StartWebServer(cfg *config.Config) {
	server, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialise server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
