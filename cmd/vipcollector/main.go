package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vipcollector/internal/api"
	"vipcollector/internal/collector"
	"vipcollector/internal/config"
	"vipcollector/internal/discord"
	"vipcollector/internal/logging"
)

func main() {
	if err := newRootCmd(run).Execute(); err != nil {
		os.Exit(1)
	}
}

type runFunc func(ctx context.Context, opts config.Options) error

func newRootCmd(run runFunc) *cobra.Command {
	var opts config.Options

	cmd := &cobra.Command{
		Use:           "vipcollector",
		Short:         "Repost today's @VIP messages on !collect_vip",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cmd.Context(), opts)
			if errors.Is(err, discord.ErrInvalidToken) {
				fmt.Fprintln(cmd.ErrOrStderr(), "ERROR: Provided bot token is invalid")
			} else if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %v\n", err)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.File, "config", "c", "", "YAML config file (default "+config.DefaultFile+" if present)")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file to load (default .env if present)")

	return cmd
}

func run(ctx context.Context, opts config.Options) error {
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if cfg.Channels.SourceID == "" || cfg.Channels.DestID == "" {
		logger.Warn("source or destination channel id not configured; set SOURCEID and DESTID")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opt := []collector.Option{collector.WithLocation(loc)}

	var server *api.Server
	if cfg.Server.Addr != "" {
		server = api.NewServer(logger)
		opt = append(opt, collector.WithRecorder(server))
	}

	// The bot outlives the signal context so queued sends flush after in-flight
	// passes finish.
	bot, err := discord.New(context.WithoutCancel(ctx), cfg.Discord.Token, logger)
	if err != nil {
		return err
	}
	coll := collector.New(bot.Directory(), cfg.Channels, logger, opt...)
	if err := bot.Open(coll); err != nil {
		return err
	}

	if server != nil {
		go func() {
			logger.Info("status server starting", zap.String("addr", cfg.Server.Addr))
			if err := server.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server", zap.Error(err))
			}
		}()
	}

	logger.Info("vip collector started",
		zap.String("source_id", cfg.Channels.SourceID),
		zap.String("dest_id", cfg.Channels.DestID),
		zap.String("timezone", loc.String()),
	)

	<-ctx.Done()

	logger.Info("shutting down")
	bot.Detach()
	coll.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown", zap.Error(err))
		}
	}

	return bot.Close()
}
