package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chaseai/chaseai/internal/config"
	"github.com/chaseai/chaseai/internal/instruction"
	"github.com/chaseai/chaseai/internal/logging"
	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/store"
)

var (
	configDir   string
	storeDriver string
	logLevel    string
	logDev      bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default $CHASEAI_CONFIG_DIR or ~/.config/chaseai)")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "json", "Context store backend: json or sqlite")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logDev, "log-dev", false, "Human-readable console logs")
}

var rootCmd = &cobra.Command{
	Use:           "chaseai",
	Short:         "Local control plane for autonomous agents",
	Long:          "Serves per-port instruction contexts to agents and routes sensitive actions\nthrough a human approval prompt before they run.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func resolvedDir() string {
	if configDir != "" {
		return configDir
	}
	return config.Dir()
}

func paths() config.Paths {
	return config.PathsIn(resolvedDir(), storeDriver)
}

func newLogger() (*zap.Logger, error) {
	return logging.New(logLevel, logDev)
}

func loadNetwork() (*model.NetworkConfig, error) {
	return config.Load(paths().Network)
}

// openManager loads the Context Manager from the configured store. The
// returned func closes the store.
func openManager() (*instruction.Manager, func(), error) {
	st, err := store.Open(storeDriver, paths().Contexts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open context store: %w", err)
	}
	closeFn := func() {
		if c, ok := st.(interface{ Close() error }); ok {
			c.Close()
		}
	}

	m, err := instruction.NewManager(st)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return m, closeFn, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}
