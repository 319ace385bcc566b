package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dexto-ai/dexto-core/internal/event"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive REPL against one session",
	Long: `chat reads lines from stdin and runs each as a turn against the
named session (default: "default"), printing the reply. Type "exit" or
send EOF (Ctrl-D) to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		agent, cleanup, err := buildAgent(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		handle := agent.Subscribe(func(ev event.Event) {
			if ev.Name != event.LLMServiceToolCall {
				return
			}
			if fields, ok := ev.Payload.(map[string]any); ok {
				fmt.Fprintf(os.Stderr, "  [tool: %v]\n", fields["toolName"])
			}
		})
		defer agent.Unsubscribe(handle)

		fmt.Printf("agentcore-demo chat (session %q). Type 'exit' to quit.\n", sessionOrDefault(chatSessionID))
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}

			reply, err := agent.Run(ctx, line, nil, chatSessionID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Println(reply)
		}
		return scanner.Err()
	},
}

func sessionOrDefault(id string) string {
	if id == "" {
		return "default"
	}
	return id
}

func init() {
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "", "Session id to chat against (default: \"default\")")
}
