package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/assistant"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/channels/console"
)

// newChatCmd creates the `homeclaw chat` command: the full assistant in
// the terminal, using the console channel instead of a messaging platform.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal session with the assistant",
		Long: `Start an interactive terminal session. The same routing applies as
on the messaging channels: "cc <prompt>" and friends reach Claude Code,
everything else goes to the LLM.

Example:
  homeclaw chat --user u-100`,
		RunE: runChat,
	}

	cmd.Flags().String("user", "", "user id reported to the project registry (for Claude Code authorization)")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	// Terminal sessions read nicer as text.
	cfg.Logging.Format = "text"
	logger := newLogger(cmd, cfg)

	assistant.ResolveSecrets(cfg, logger)

	app, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID, _ := cmd.Flags().GetString("user")
	if err := app.manager.Register(console.New(userID, logger)); err != nil {
		return err
	}

	if err := app.start(ctx); err != nil {
		return err
	}

	// Run until Ctrl+C or EOF on the prompt.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	app.stop(cancel)
	return nil
}
