package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"garden/account"
	"garden/admin"
	"garden/assets"
	"garden/auth"
	"garden/blog"
	"garden/common"
	"garden/config"
	"garden/database"
	"garden/interaction"
	"garden/logging"
	"garden/metrics"
	"garden/models"
	"garden/newsletter"
	"garden/realtime"
	"garden/store"
	"garden/views"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LogFormat, cfg.LogLevel)

	db, err := common.ConnectDb(cfg)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := database.RunMigrations(db); err != nil {
		logging.L.Fatal().Err(err).Msg("Failed to run migrations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var broker realtime.Broker = realtime.NewMemoryBroker()
	rdb, err := common.ConnectRedis(ctx, cfg)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	if rdb != nil {
		defer rdb.Close()
		broker = realtime.NewRedisBroker(rdb)
	}

	s := store.New(db, broker)
	provider := auth.NewProvider(s, cfg.AdminEmailList())
	provider.OnAuthStateChange(func(event auth.Event, user *models.User) {
		if user != nil {
			logging.L.Info().Str("event", string(event)).Uint("user_id", user.ID).Msg("auth state changed")
		}
	})

	assetStore, err := newAssetStore(cfg)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("Failed to set up asset storage")
	}
	mailer, err := newsletter.NewMailer(cfg)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("Failed to set up mailer")
	}
	dispatcher := newsletter.NewDispatcher(s, mailer, cfg.MailFrom, cfg.SiteURL)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(), metrics.Middleware())

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions("garden-session", sessionStore))
	router.Use(provider.LoadSession())

	router.SetHTMLTemplate(views.Must())
	router.Static("/public", "./public")
	if disk, ok := assetStore.(*assets.DiskStore); ok {
		assets.ServeDisk(router, "/uploads", disk)
	}

	counter := blog.NewViewCounter(s)
	blog.NewBlogModule(s, counter, cfg.SiteURL).RegisterRoutes(router)
	account.NewAccountModule(s, provider).RegisterRoutes(router)
	interaction.NewInteractionModule(s, broker).RegisterRoutes(router)
	newsletter.NewNewsletterModule(s).RegisterRoutes(router)
	admin.NewAdminModule(s, provider, assetStore, dispatcher).RegisterRoutes(router)

	router.GET("/metrics", metrics.Handler())
	router.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.NoRoute(func(c *gin.Context) {
		c.HTML(http.StatusNotFound, "not_found.html", views.Page(c, gin.H{
			"title": "Not found",
			"error": "Page not found",
		}))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.L.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logging.L.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.L.Error().Err(err).Msg("Server shutdown error")
	}
	counter.Wait()
}

func newAssetStore(cfg *config.Config) (assets.Store, error) {
	if cfg.AssetDriver == "s3" {
		return assets.NewS3Store(cfg.S3Bucket, cfg.AWSRegion, cfg.S3PublicBaseURL)
	}
	return assets.NewDiskStore(cfg.AssetDir, "/uploads")
}
