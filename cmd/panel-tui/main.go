package main

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/logging"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/panel"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/app"
	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tui/client"
)

func newCommand() *cobra.Command {
	var (
		wsURL   string
		name    string
		token   string
		logPath string
	)

	cmd := &cobra.Command{
		Use:          "panel-tui",
		Short:        "Terminal view for the panel host",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			// The alt screen owns the terminal; logs go to a file or nowhere.
			var w io.Writer = io.Discard
			if logPath != "" {
				f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			log := logging.New(w, "debug")

			ws, err := client.NewWSClient(wsURL, name, token, log)
			if err != nil {
				return err
			}
			defer ws.Close()

			m := app.New(ws, client.NewHTTPClient(client.HTTPBase(wsURL), token), name)
			if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&wsURL, "url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the panel host")
	cmd.Flags().StringVar(&name, "panel", panel.Issues, "Panel to attach to (issues or connect)")
	cmd.Flags().StringVar(&token, "token", "", "Auth token (if the host requires it)")
	cmd.Flags().StringVar(&logPath, "log", "", "Write debug logs to this file")

	return cmd
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
