package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runSessionID string

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run a single turn against a session and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		agent, cleanup, err := buildAgent(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		reply, err := agent.Run(ctx, strings.Join(args, " "), nil, runSessionID)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		fmt.Println(reply)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runSessionID, "session", "s", "", "Session id to run against (default: \"default\")")
}
