package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/daqlink/internal/observability"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// RunOptions configures one command lifecycle.
type RunOptions struct {
	// Name labels the admin surface and heartbeat log lines.
	Name        string
	AdminAddr   string
	CORSOrigins []string
	// HeartbeatInterval logs component readiness periodically; zero disables it.
	HeartbeatInterval time.Duration
	// AdminListening is called with the bound admin address before serving.
	AdminListening func(net.Addr)
}

// Run blocks until SIGINT/SIGTERM, ctx ends, or work returns. The admin server
// shuts down with the command. A nil return from work ends the run cleanly.
func Run(ctx context.Context, d Deps, cs *Components, opts RunOptions, work func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := d.Component("app")
	g, ctx := errgroup.WithContext(ctx)

	if opts.AdminAddr != "" {
		ln, err := net.Listen("tcp", opts.AdminAddr)
		if err != nil {
			return err
		}
		if opts.AdminListening != nil {
			opts.AdminListening(ln.Addr())
		}
		srv := &http.Server{
			Handler: observability.NewAdminRouter(observability.AdminConfig{
				Component:   opts.Name,
				Version:     d.Version,
				CORSOrigins: opts.CORSOrigins,
			}, d.Logger, d.Metrics, d.Registry, cs),
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	if opts.HeartbeatInterval > 0 {
		g.Go(func() error {
			heartbeat(ctx, cs, opts, log)
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		return work(ctx)
	})

	err := g.Wait()
	log.Info().Str("name", opts.Name).Msg("shutdown")
	return err
}
