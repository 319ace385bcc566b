package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List, end, or fork sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every persisted session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		agent, cleanup, err := buildAgent(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		sessions, err := agent.ListSessions(ctx)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			fmt.Printf("%s\tmessages=%d\tparent=%s\n", s.ID, s.MessageCount, s.ParentID)
		}
		return nil
	},
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "End a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		agent, cleanup, err := buildAgent(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		return agent.EndSession(ctx, args[0])
	},
}

var sessionsResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Clear a session's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		agent, cleanup, err := buildAgent(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		return agent.Reset(ctx, args[0])
	},
}

var forkUptoIndex int

var sessionsForkCmd = &cobra.Command{
	Use:   "fork <source-id>",
	Short: "Fork a session's history into a new session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		agent, cleanup, err := buildAgent(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		newID, err := agent.ForkSession(ctx, args[0], forkUptoIndex)
		if err != nil {
			return err
		}
		fmt.Println(newID)
		return nil
	},
}

func init() {
	sessionsForkCmd.Flags().IntVar(&forkUptoIndex, "upto", -1, "0-based message index to fork up to and including (-1: no history)")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsEndCmd)
	sessionsCmd.AddCommand(sessionsResetCmd)
	sessionsCmd.AddCommand(sessionsForkCmd)
}
