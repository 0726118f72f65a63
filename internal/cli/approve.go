package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	approveSession bool
	approveMessage string
)

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().BoolVar(&approveSession, "session", false, "Approve for a session instead of once")
	approveCmd.Flags().StringVarP(&approveMessage, "message", "m", "", "Note returned to the agent")
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Approve a pending verification request",
	Long:  "Selects the approve button of a queued request. With --session the\nagent receives a session that stays valid for one hour.",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := openApprovals()
	if err != nil {
		return err
	}

	a, err := store.Get(key)
	if err != nil {
		return err
	}

	index := approveIndex(a.Buttons, approveSession)
	if index < 0 {
		if approveSession {
			return fmt.Errorf("request %q has no session button", key)
		}
		return fmt.Errorf("request %q has no approve button", key)
	}

	if err := store.Resolve(key, index, approveMessage); err != nil {
		return err
	}
	fmt.Printf("Approved %q (%s)\n", key, a.Buttons[index])
	return nil
}

// approveIndex picks the button a human would press: the session button
// when session is set, otherwise an approve button that is not one.
func approveIndex(buttons []string, session bool) int {
	for i, b := range buttons {
		label := strings.ToLower(b)
		hasSession := strings.Contains(label, "session")
		if session && hasSession {
			return i
		}
		if !session && !hasSession && strings.Contains(label, "approve") {
			return i
		}
	}
	return -1
}
