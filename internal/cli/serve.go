package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"scrabble-bot/internal/factory"
	"scrabble-bot/internal/server"
	"scrabble-bot/internal/tgbot"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var noBot bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if !noBot {
				if err := cfg.RequireTelegram(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := factory.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			release, err := app.Start(ctx)
			if release == nil {
				return fmt.Errorf("roster: %w", err)
			}
			defer release()
			if err != nil {
				// The subscription is open; the next change notification retries.
				logger.Warn("initial roster load failed", slog.String("error", err.Error()))
			}

			var bot *tgbot.App
			if !noBot {
				bot, err = tgbot.New(cfg, tgbot.Deps{
					Roster:   app.Roster,
					Proof:    app.Proof,
					Identity: app.IdentityProvider(),
					Clock:    app.Clock,
					Logger:   logger,
					Metrics:  app.Metrics,
				})
				if err != nil {
					return fmt.Errorf("telegram: %w", err)
				}
			}
			if app.Directory == nil {
				logger.Warn("ADMIN_ACCOUNTS is empty, admin commands are disabled")
			}

			httpSrv := server.New(cfg, app.Roster, app.Registry, app.Clock, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("http listening", slog.String("addr", cfg.HTTPAddr))
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")
				sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()
				return httpSrv.Shutdown(sctx)
			})
			if bot != nil {
				g.Go(func() error {
					err := bot.Run(gctx)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					if err == nil {
						err = errors.New("telegram update feed closed")
					}
					return fmt.Errorf("bot stopped: %w", err)
				})
			}

			err = g.Wait()
			logger.Info("bye")
			return err
		},
	}

	cmd.Flags().BoolVar(&noBot, "no-bot", false, "serve only the HTTP API, without connecting to Telegram")
	return cmd
}
