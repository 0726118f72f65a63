package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chaseai/chaseai/internal/config"
	"github.com/chaseai/chaseai/internal/generator"
	"github.com/chaseai/chaseai/internal/model"
)

var (
	configFormat string
	configForce  bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configExportCmd)
	configShowCmd.Flags().StringVar(&configFormat, "format", "json", "Output format: json, yaml, markdown, or agent_rule")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing network config")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the network configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Render the agent-facing configuration document",
	Long:  "Prints the same document agents fetch from GET /config. Unknown formats\nfall back to json.",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the files chaseai reads and writes",
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default network config",
	RunE:  runConfigInit,
}

var configExportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write the configuration document in every format",
	Long:  "Writes chaseai.json, chaseai.yaml, chaseai.md and chaseai.rules into dir\nfor agents that read instructions from files.",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigExport,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadNetwork()
	if err != nil {
		return err
	}

	out, err := generator.New(version).Render(generator.ParseFormat(configFormat), cfg)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	p := paths()
	fmt.Printf("dir:       %s\n", p.Dir)
	fmt.Printf("network:   %s\n", p.Network)
	fmt.Printf("contexts:  %s\n", p.Contexts)
	fmt.Printf("approvals: %s\n", p.Approvals)
	fmt.Printf("audit:     %s\n", p.AuditLog)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := paths().Network
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Save(path, model.DefaultNetworkConfig()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadNetwork()
	if err != nil {
		return err
	}

	dir := args[0]
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	gen := generator.New(version)
	for _, f := range generator.Formats {
		out, err := gen.Render(f, cfg)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, "chaseai"+f.Extension())
		if err := os.WriteFile(path, []byte(out), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Printf("Wrote %s\n", path)
	}
	return nil
}
