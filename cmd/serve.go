package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/setlist/internal/server"
	"github.com/desertthunder/setlist/internal/services"
	"github.com/desertthunder/setlist/internal/shared"
	"github.com/urfave/cli/v3"
)

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Serve exposes the local database as a list server with a websocket change feed.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if r.config.Remote.URL != "" && !cmd.Bool("force") {
		return fmt.Errorf("%w: remote.url is set; a server stores lists in its own database (use --force to serve anyway)", shared.ErrInvalidConfig)
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	srv := server.New(services.NewLocalStore(db, r.logger), r.logger)
	return srv.ListenAndServe(ctx, addr)
}
