package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaseai/chaseai/internal/config"
	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/netif"
)

var (
	portsInterface string
	portsRole      string
	portsDisabled  bool
	portsJSON      bool
)

// detector resolves --interface names. Tests swap the address source.
var detector = netif.NewDetector(netif.SystemAddrs)

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.AddCommand(portsListCmd)
	portsCmd.AddCommand(portsAddCmd)
	portsCmd.AddCommand(portsRemoveCmd)
	portsCmd.AddCommand(portsEnableCmd)
	portsCmd.AddCommand(portsDisableCmd)
	portsCmd.AddCommand(portsInterfacesCmd)

	portsListCmd.Flags().BoolVar(&portsJSON, "json", false, "Output as JSON")
	portsAddCmd.Flags().StringVar(&portsInterface, "interface", netif.LoopbackName(), "Interface name or IP address to listen on")
	portsAddCmd.Flags().StringVar(&portsRole, "role", "instruction", "Port role: instruction, verification, or workflow")
	portsAddCmd.Flags().BoolVar(&portsDisabled, "disabled", false, "Add the binding without serving it")
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Manage port bindings",
	Long:  "Edits the network config. A running control plane starts and stops\nservers as the file changes.",
}

var portsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured port bindings",
	RunE:  runPortsList,
}

var portsAddCmd = &cobra.Command{
	Use:   "add <port>",
	Short: "Add a port binding",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortsAdd,
}

var portsRemoveCmd = &cobra.Command{
	Use:   "remove <port>",
	Short: "Remove a port binding",
	Args:  cobra.ExactArgs(1),
	RunE:  runPortsRemove,
}

var portsEnableCmd = &cobra.Command{
	Use:   "enable <port>",
	Short: "Serve a configured port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPortEnabled(args[0], true)
	},
}

var portsDisableCmd = &cobra.Command{
	Use:   "disable <port>",
	Short: "Stop serving a configured port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPortEnabled(args[0], false)
	},
}

var portsInterfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List interfaces a port can bind to",
	RunE:  runPortsInterfaces,
}

func runPortsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadNetwork()
	if err != nil {
		return err
	}

	if portsJSON {
		out, _ := json.MarshalIndent(cfg.PortBindings, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	if len(cfg.PortBindings) == 0 {
		fmt.Println("No port bindings configured.")
		return nil
	}

	fmt.Printf("%-6s %-14s %-10s %-22s %s\n", "PORT", "ROLE", "STATE", "ADDRESS", "INTERFACE")
	for _, b := range cfg.PortBindings {
		state := "disabled"
		if b.Enabled {
			state = "enabled"
		}
		fmt.Printf("%-6d %-14s %-10s %-22s %s (%s)\n",
			b.Port, b.Role, state, b.Addr(), b.Interface.Name, b.Interface.Type)
	}
	return nil
}

func runPortsAdd(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	if err := netif.ValidatePort(port); err != nil {
		return err
	}

	role, err := parseRole(portsRole)
	if err != nil {
		return err
	}

	iface, err := detector.Lookup(portsInterface)
	if err != nil {
		return err
	}

	cfg, err := loadNetwork()
	if err != nil {
		return err
	}
	b := model.Binding{
		Port:      port,
		Interface: iface,
		Role:      role,
		Enabled:   !portsDisabled,
	}
	if err := cfg.AddBinding(b); err != nil {
		return err
	}
	if err := config.Save(paths().Network, cfg); err != nil {
		return err
	}

	fmt.Printf("Added %s\n", b)
	return nil
}

func runPortsRemove(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadNetwork()
	if err != nil {
		return err
	}
	if err := cfg.RemoveBinding(port); err != nil {
		return err
	}
	if err := config.Save(paths().Network, cfg); err != nil {
		return err
	}

	fmt.Printf("Removed port %d\n", port)
	return nil
}

func setPortEnabled(arg string, enabled bool) error {
	port, err := parsePort(arg)
	if err != nil {
		return err
	}

	cfg, err := loadNetwork()
	if err != nil {
		return err
	}
	if err := cfg.SetEnabled(port, enabled); err != nil {
		return err
	}
	if err := config.Save(paths().Network, cfg); err != nil {
		return err
	}

	if enabled {
		fmt.Printf("Enabled port %d\n", port)
	} else {
		fmt.Printf("Disabled port %d\n", port)
	}
	return nil
}

func runPortsInterfaces(cmd *cobra.Command, args []string) error {
	all, err := detector.DetectAll()
	if err != nil {
		return err
	}

	fmt.Printf("%-12s %-40s %s\n", "NAME", "ADDRESS", "TYPE")
	for _, iface := range all {
		fmt.Printf("%-12s %-40s %s\n", iface.Name, iface.IPAddress, iface.Type)
	}
	return nil
}

func parseRole(s string) (model.PortRole, error) {
	switch strings.ToLower(s) {
	case "instruction":
		return model.RoleInstruction, nil
	case "verification":
		return model.RoleVerification, nil
	case "workflow":
		return model.RoleWorkflow, nil
	default:
		return "", fmt.Errorf("unknown role %q (want instruction, verification, or workflow)", s)
	}
}
