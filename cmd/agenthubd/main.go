// Command agenthubd runs the AgentHub HTTP server with the travel planning
// agent registered and the connector sync scheduler polling in the
// background. Configuration is resolved from flags, environment variables
// prefixed AGENTHUB_, and an optional config file, in that order.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/agenthub"
	"github.com/hupe1980/agenthub/logging"
	"github.com/hupe1980/agenthub/model"
	modelanthropic "github.com/hupe1980/agenthub/model/anthropic"
	modelopenai "github.com/hupe1980/agenthub/model/openai"
	"github.com/hupe1980/agenthub/scheduler"
	"github.com/hupe1980/agenthub/search"
	"github.com/hupe1980/agenthub/server"
	"github.com/hupe1980/agenthub/travel"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "agenthubd",
		Short:         "AgentHub server: agent registry, knowledge bases and sync scheduling over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("provider", "openai", "generation provider (openai or anthropic)")
	flags.Duration("sync-interval", time.Minute, "connector sync poll interval")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("config", "", "path to config file")

	v.SetEnvPrefix("AGENTHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	cobra.OnInitialize(func() {
		if path := v.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				fmt.Fprintf(os.Stderr, "config file %s: %v\n", path, err)
				os.Exit(1)
			}
		}
	})

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	logger := logging.NewSlogLogger(parseLevel(v.GetString("log-level")), "text", false)

	hub := agenthub.New(func(o *agenthub.Options) { o.Logger = logger })

	generator, err := buildGenerator(v.GetString("provider"))
	if err != nil {
		return err
	}

	var searcher search.Provider
	if httpSearch := search.NewHTTPProvider(); httpSearch.Available() {
		searcher = httpSearch
	} else {
		logger.Warn("no search api key configured, using mock search provider")
		searcher = search.NewMockProvider()
	}

	travelRunner, err := travel.NewRunner(generator, searcher, func(o *travel.RunnerOptions) {
		o.Logger = logger
	})
	if err != nil {
		return err
	}
	travelDef, err := travel.NewDefinition(travelRunner)
	if err != nil {
		return err
	}
	if err := hub.Register(travelDef); err != nil {
		return err
	}

	srv := server.New(hub.Registry(), hub.Knowledge(), func(o *server.Options) {
		o.Logger = logger
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(hub.Knowledge(), func(o *scheduler.Options) {
		o.Interval = v.GetDuration("sync-interval")
		o.Logger = logger
	})
	go func() { _ = sched.Run(ctx) }()

	httpServer := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agenthub server listening", "addr", httpServer.Addr, "provider", v.GetString("provider"))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("agenthub server stopped")
	return nil
}

func buildGenerator(provider string) (model.Generator, error) {
	switch provider {
	case "openai":
		if !modelopenai.Available() {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return modelopenai.New(), nil
	case "anthropic":
		if !modelanthropic.Available() {
			return nil, errors.New("ANTHROPIC_API_KEY is not set")
		}
		return modelanthropic.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected openai or anthropic)", provider)
	}
}

func parseLevel(level string) logging.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
