package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragchat/internal/apiclient"
	"ragchat/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a terminal chat session against a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := apiclient.New(cfg.Server.URL)
		m := tui.New(client)
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}
