package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/config"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/host"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/logging"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/ws"
)

type serveOptions struct {
	configPath  string
	port        int
	offline     bool
	debug       bool
	open        bool
	frontendDir string
}

func newServeCommand() *cobra.Command {
	var o serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the panel host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), o)
		},
	}

	cmd.Flags().StringVarP(&o.configPath, "config", "c", "config.yaml", "Path to config file")
	cmd.Flags().IntVarP(&o.port, "port", "p", 0, "Override server port")
	cmd.Flags().BoolVar(&o.offline, "offline", false, "Serve canned issues; uploads become local messages")
	cmd.Flags().BoolVarP(&o.debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&o.open, "open", true, "Open the first panel in the browser")
	cmd.Flags().StringVar(&o.frontendDir, "frontend-dir", "", "Serve the view from this directory instead of the embedded one")

	return cmd
}

func serve(parent context.Context, o serveOptions) error {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return err
	}
	if o.port > 0 {
		cfg.Server.Port = o.port
	}
	if o.offline {
		cfg.Offline = true
	}
	if o.debug {
		cfg.Log.Level = "debug"
	}
	if o.frontendDir != "" {
		cfg.Server.FrontendDir = o.frontendDir
	}

	log := logging.New(os.Stderr, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := host.New(ctx, cfg, log)

	watcher := config.NewWatcher(o.configPath, h.Apply,
		config.WithOnError(func(err error) {
			log.Warn().Err(err).Str("path", o.configPath).Msg("config reload")
		}),
	)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("config watcher stopped")
		}
	}()

	if o.open {
		first := h.InitialPanel()
		go func() {
			if err := h.OpenPanel(ctx, first); err != nil {
				log.Warn().Err(err).Str("panel", first).Msg("open panel")
			}
		}()
	}

	log.Info().Bool("offline", cfg.Offline).Str("panel", h.InitialPanel()).Msg("starting panel host")
	err = ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, h.Handler(), log)
	stop()
	h.Wait()
	return err
}
