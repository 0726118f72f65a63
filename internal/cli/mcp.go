package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chaseai/chaseai/internal/config"
	chasemcp "github.com/chaseai/chaseai/internal/mcp"
	"github.com/chaseai/chaseai/internal/model"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs chaseai as an MCP (Model Context Protocol) server over stdio.\nExposes tools to list and read contexts, render the config document, and\nrequest verification from the running control plane.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	m, closeStore, err := openManager()
	if err != nil {
		return err
	}
	defer closeStore()

	p := paths()
	network := func() *model.NetworkConfig {
		cfg, err := config.Load(p.Network)
		if err != nil {
			log.Warn("network config unreadable, using defaults", zap.Error(err))
			return model.DefaultNetworkConfig()
		}
		return cfg
	}

	srv := chasemcp.New(chasemcp.Config{
		Contexts: m,
		Network:  network,
		Version:  version,
		Logger:   log,
	})

	if err := os.MkdirAll(p.Dir, 0700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	w, err := config.WatchFile(p.Contexts, func() {
		if err := m.Reload(); err != nil {
			log.Warn("context reload failed", zap.Error(err))
		}
	}, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "chaseai MCP server running on stdio")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error {
		defer stop()
		return srv.Run(gctx)
	})
	return g.Wait()
}
