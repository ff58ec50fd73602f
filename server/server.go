package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"clipfm/cache"
	"clipfm/config"
	"clipfm/core/auth"
	"clipfm/core/ingest"
	"clipfm/core/resolver"
	"clipfm/core/toolchain"
	"clipfm/db"
	"clipfm/logger"
	"clipfm/model"
	"clipfm/repository"
	"clipfm/storage"
)

// Start initializes dependencies, wires the API and runs the HTTP server
// until an interrupt arrives.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	allowlist, err := config.LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		logger.Fatal("failed to load allow-list", logger.ErrorField(err))
	}
	defer allowlist.Close()
	logger.Info("allow-list loaded",
		logger.String("path", cfg.AllowlistPath),
		logger.Int("entries", allowlist.Size()),
	)

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize minio", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect gorm", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.Playlist{}); err != nil {
		logger.Fatal("failed to migrate models", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		// Redis is a cache and event bus; the API degrades without it.
		logger.Warn("redis unavailable, running without cache and live feed",
			logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
	}

	trackRepo := repository.NewMySQLTrackRepository()
	playlistRepo := repository.NewGormPlaylistRepository(db.GormDB)
	library := cache.NewLibraryCache(db.RedisClient)
	blobs := storage.NewMinioStore(cfg)

	runner := toolchain.NewExecRunner()
	pipeline := ingest.NewPipeline(
		cfg,
		resolver.New(),
		toolchain.NewDownloader(runner, cfg.YtdlpPath, cfg.DownloaderCookiesB64),
		toolchain.NewFFmpeg(runner, cfg.FFmpegPath),
		trackRepo,
		blobs,
		library,
	)

	verifier := auth.NewVerifier(cfg.JWTSecret, allowlist)
	apiHandler := NewAPIHandler(cfg, verifier, pipeline, trackRepo, playlistRepo, library, blobs)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.SubmitTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/bulk", apiHandler.AuthMiddleware(apiHandler.BulkSubmitHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.RenameTrackHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/upload", apiHandler.AuthMiddleware(apiHandler.UploadTrackHandler)).Methods(http.MethodPost)

	router.HandleFunc("/api/playlists", apiHandler.AuthMiddleware(apiHandler.GetPlaylistsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists", apiHandler.AuthMiddleware(apiHandler.CreatePlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}", apiHandler.AuthMiddleware(apiHandler.RenamePlaylistHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/playlists/{id}", apiHandler.AuthMiddleware(apiHandler.DeletePlaylistHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/tracks/{trackId}", apiHandler.AuthMiddleware(apiHandler.AddPlaylistTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/tracks/{trackId}", apiHandler.AuthMiddleware(apiHandler.RemovePlaylistTrackHandler)).Methods(http.MethodDelete)

	router.HandleFunc("/api/ws/library", apiHandler.LibraryFeedHandler)

	router.PathPrefix("/audio/").HandlerFunc(apiHandler.AudioHandler).Methods(http.MethodGet, http.MethodHead)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
		// Submit requests block on download and transcode; keep write generous.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
