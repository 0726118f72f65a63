package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var denyMessage string

func init() {
	rootCmd.AddCommand(denyCmd)
	denyCmd.Flags().StringVarP(&denyMessage, "message", "m", "", "Note returned to the agent")
}

var denyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Reject a pending verification request",
	Long:  "Selects the first button that neither approves nor opens a session.\nRequests without one are cancelled.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeny,
}

func runDeny(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := openApprovals()
	if err != nil {
		return err
	}

	a, err := store.Get(key)
	if err != nil {
		return err
	}

	index := denyIndex(a.Buttons)
	if index < 0 {
		if err := store.Cancel(key, denyMessage); err != nil {
			return err
		}
		fmt.Printf("Cancelled %q\n", key)
		return nil
	}

	if err := store.Resolve(key, index, denyMessage); err != nil {
		return err
	}
	fmt.Printf("Denied %q (%s)\n", key, a.Buttons[index])
	return nil
}

func denyIndex(buttons []string) int {
	for i, b := range buttons {
		label := strings.ToLower(b)
		if !strings.Contains(label, "approve") && !strings.Contains(label, "session") {
			return i
		}
	}
	return -1
}
