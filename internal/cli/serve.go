package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaseai/chaseai/internal/app"
)

var (
	servePrompter string
	serveNoAudit  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePrompter, "prompter", "dialog", "Approval prompt: dialog, terminal, or queue")
	serveCmd.Flags().BoolVar(&serveNoAudit, "no-audit", false, "Do not record verification decisions")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane",
	Long:  "Starts an HTTP server for every enabled port binding and keeps the set in\nline with the network config file until interrupted.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(app.Options{
		Dir:          resolvedDir(),
		Driver:       storeDriver,
		Version:      version,
		PrompterName: servePrompter,
		NoAudit:      serveNoAudit,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "chaseai control plane running (config: %s, prompter: %s)\n", a.Paths().Network, servePrompter)
	err = a.Run(ctx)
	fmt.Fprintln(os.Stderr, "chaseai control plane stopped")
	return err
}
