package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ragchat/internal/apiclient"
)

var guardrailsFile string

var guardrailsCmd = &cobra.Command{
	Use:   "guardrails [text]",
	Short: "Set the guardrails instruction block on a running server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var text string
		switch {
		case guardrailsFile != "":
			data, err := os.ReadFile(guardrailsFile)
			if err != nil {
				return err
			}
			text = string(data)
		case len(args) == 1:
			text = args[0]
		default:
			return fmt.Errorf("provide guardrails text as an argument or via --file")
		}
		client := apiclient.New(cfg.Server.URL)
		msg, err := client.SetGuardrails(cmd.Context(), strings.TrimRight(text, "\n"))
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

func init() {
	guardrailsCmd.Flags().StringVarP(&guardrailsFile, "file", "f", "", "read guardrails text from a file")
}
