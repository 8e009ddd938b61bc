package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/forcerank/internal/config"
	"github.com/kiliankoe/forcerank/internal/engine"
	"github.com/kiliankoe/forcerank/internal/httpapi"
	"github.com/kiliankoe/forcerank/internal/platform/otel"
	"github.com/kiliankoe/forcerank/internal/ws"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "forcerank", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := ensureTerms(ctx, store, cfg.TermsFile); err != nil {
		return err
	}

	opts := []engine.Option{engine.WithDemo(cfg.DemoCode, cfg.DemoNames)}
	if cfg.ExportEnabled {
		opts = append(opts, engine.WithExport(cfg.ExportFile))
	}
	hub := ws.NewHub()
	eng := engine.New(store, store, hub, opts...)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpapi.AccessLog())
	httpapi.New(eng, store, store, cfg.PublicURL).Register(r)
	io := ws.New(eng, hub).Mount(r)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Bind, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Bool("persistent", cfg.StorePath != "").Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := io.Close(); err != nil {
			log.Warn().Err(err).Msg("socket.io close")
		}
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
