package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chaseai/chaseai/internal/model"
)

var (
	ctxFile         string
	ctxSystem       string
	ctxRole         string
	ctxInstruction  string
	ctxActions      []string
	ctxVerification bool
	ctxJSON         bool
)

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextGetCmd)
	contextCmd.AddCommand(contextDeleteCmd)
	contextCmd.AddCommand(contextListCmd)

	contextSetCmd.Flags().StringVarP(&ctxFile, "file", "f", "", "Read the context from a YAML or JSON file")
	contextSetCmd.Flags().StringVar(&ctxSystem, "system", "", "System the agent works in")
	contextSetCmd.Flags().StringVar(&ctxRole, "role", "", "Role the agent plays")
	contextSetCmd.Flags().StringVar(&ctxInstruction, "instruction", "", "Base instruction")
	contextSetCmd.Flags().StringArrayVar(&ctxActions, "action", nil, "Allowed action (repeatable)")
	contextSetCmd.Flags().BoolVar(&ctxVerification, "verification-required", false, "Agent must verify actions before running them")
	contextListCmd.Flags().BoolVar(&ctxJSON, "json", false, "Output as JSON")
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage per-port instruction contexts",
}

var contextSetCmd = &cobra.Command{
	Use:   "set <port>",
	Short: "Set the instruction context served on a port",
	Long:  "Validates and stores the context for an enabled port binding. The\nrunning control plane picks up the change without a restart.",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextSet,
}

var contextGetCmd = &cobra.Command{
	Use:   "get <port>",
	Short: "Print the instruction context for a port",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextGet,
}

var contextDeleteCmd = &cobra.Command{
	Use:   "delete <port>",
	Short: "Remove the instruction context for a port",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextDelete,
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all instruction contexts",
	RunE:  runContextList,
}

func runContextSet(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}

	ic, err := contextFromFlags()
	if err != nil {
		return err
	}

	cfg, err := loadNetwork()
	if err != nil {
		return err
	}

	m, closeStore, err := openManager()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := m.SetContext(port, ic, cfg); err != nil {
		return err
	}
	fmt.Printf("Context set for port %d\n", port)
	return nil
}

// contextFromFlags builds the context from --file, or from the field
// flags when no file is given.
func contextFromFlags() (model.InstructionContext, error) {
	var ic model.InstructionContext
	if ctxFile == "" {
		ic = model.InstructionContext{
			System:               ctxSystem,
			Role:                 ctxRole,
			BaseInstruction:      ctxInstruction,
			AllowedActions:       append([]string(nil), ctxActions...),
			VerificationRequired: ctxVerification,
		}
		return ic, nil
	}

	data, err := os.ReadFile(ctxFile)
	if err != nil {
		return ic, fmt.Errorf("failed to read context file: %w", err)
	}
	// YAML is a superset of JSON.
	if err := yaml.Unmarshal(data, &ic); err != nil {
		return ic, fmt.Errorf("failed to parse context file: %w", err)
	}
	return ic, nil
}

func runContextGet(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}

	m, closeStore, err := openManager()
	if err != nil {
		return err
	}
	defer closeStore()

	ic, ok := m.GetContext(port)
	if !ok {
		return fmt.Errorf("no context for port %d", port)
	}
	out, _ := json.MarshalIndent(ic, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runContextDelete(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}

	m, closeStore, err := openManager()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := m.DeleteContext(port); err != nil {
		return err
	}
	fmt.Printf("Context deleted for port %d\n", port)
	return nil
}

func runContextList(cmd *cobra.Command, args []string) error {
	m, closeStore, err := openManager()
	if err != nil {
		return err
	}
	defer closeStore()

	list := m.ListContexts()
	if ctxJSON {
		if list == nil {
			list = []model.PortContext{}
		}
		out, _ := json.MarshalIndent(list, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	if len(list) == 0 {
		fmt.Println("No contexts configured.")
		return nil
	}

	fmt.Printf("%-6s %-20s %-20s %-8s %s\n", "PORT", "SYSTEM", "ROLE", "VERIFY", "ACTIONS")
	for _, pc := range list {
		fmt.Printf("%-6d %-20s %-20s %-8t %s\n",
			pc.Port,
			truncate(pc.Context.System, 20),
			truncate(pc.Context.Role, 20),
			pc.Context.VerificationRequired,
			strings.Join(pc.Context.AllowedActions, ","),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
