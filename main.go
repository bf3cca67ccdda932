package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freekieb7/loam/api"
	"github.com/freekieb7/loam/config"
	"github.com/freekieb7/loam/filesystem"
	"github.com/freekieb7/loam/http"
	"github.com/freekieb7/loam/page"
	"github.com/freekieb7/loam/schedule"
	"github.com/freekieb7/loam/session"
	"github.com/freekieb7/loam/telemetry"
	"github.com/freekieb7/loam/upload"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(context.Background(), os.Args[1:], os.Getenv); err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(args, getenv)
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Println(err)
		}
	}()

	fs := filesystem.NewLocalFileSystem()
	if err := fs.CreateDirectory(cfg.UploadDir); err != nil {
		return fmt.Errorf("creating upload directory: %w", err)
	}

	events := schedule.NewRegistry()
	sessions := session.NewRegistry(events)
	uploads, err := upload.NewRegistry(cfg.UploadDir, fs, events)
	if err != nil {
		return err
	}
	defer func() {
		if err := uploads.Close(); err != nil {
			slog.Error("closing open transfers", "error", err)
		}
	}()

	router, err := newRouter(api.NewHandlers(sessions, uploads), fs, cfg.StaticDir)
	if err != nil {
		return err
	}

	server := http.NewServer(router)
	server.ReusePort = cfg.ReusePort
	if cfg.TLSCert != "" {
		certificate, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("loading key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{certificate},
			MinVersion:   tls.VersionTLS12,
		}
	}

	serverErrCh := make(chan error, 3)
	listen := func(name, addr string, serve func(context.Context, string) error) {
		if addr == "" {
			return
		}
		go func() {
			slog.Info("listening", "listener", name, "addr", addr)
			if err := serve(ctx, addr); err != nil {
				serverErrCh <- fmt.Errorf("%s listener: %w", name, err)
			}
		}()
	}

	listen("http", cfg.Addr, server.ListenAndServe)
	listen("https", cfg.TLSAddr, func(ctx context.Context, addr string) error {
		return server.ListenAndServeTLS(ctx, addr, "", "")
	})
	listen("quic", cfg.QUICAddr, server.ListenAndServeQUIC)

	var serveErr error
	select {
	case err := <-serverErrCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}
	stop()

	slog.Info("shutting down", "active_workers", server.ActiveWorkers())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(serveErr, server.Shutdown(shutdownCtx))
}

func newRouter(handlers *api.Handlers, fs filesystem.Filesystem, staticDir string) (*http.Router, error) {
	router := http.NewRouter()
	router.ErrorPage = page.ErrorPage

	router.GET("/", page.Handler(page.Index(handlers.Session)))
	router.GET("/index.html", router.Alias("/"))
	router.GET("/login", page.Handler(page.Login()))
	router.GET("/upload", page.Handler(page.Upload()), handlers.RequireSession)

	router.POST("/upload", handlers.Announce)
	router.POST("/uploadFile", handlers.AppendChunk)

	router.Group("/api", func(group *http.Router) {
		group.POST("/login", handlers.Login)
		group.POST("/logout", handlers.Logout)
	})

	if staticDir != "" {
		if err := http.ServeDirectory(router, fs, staticDir, "/static"); err != nil {
			return nil, err
		}
	}

	// Unknown pages lead back to the index.
	router.SetMethodFallback(http.MethodGet, http.RedirectTo("/"))

	for _, route := range router.Routes {
		slog.Debug("route registered", "route", route.String())
	}

	return router, nil
}
