package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaseai/chaseai/internal/approval"
)

var (
	pendingAll   bool
	pendingClean bool
)

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().BoolVar(&pendingAll, "all", false, "Include resolved and cancelled requests")
	pendingCmd.Flags().BoolVar(&pendingClean, "clean", false, "Remove resolved and cancelled requests first")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List verification requests waiting for a decision",
	Long:  "Shows requests queued by a control plane running with --prompter queue.\nAnswer them with approve or deny.",
	RunE:  runPending,
}

func openApprovals() (*approval.Store, error) {
	s, err := approval.NewStore(paths().Approvals)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval store: %w", err)
	}
	return s, nil
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := openApprovals()
	if err != nil {
		return err
	}

	if pendingClean {
		n, err := store.Cleanup()
		if err != nil {
			return fmt.Errorf("failed to clean approvals: %w", err)
		}
		fmt.Printf("Removed %d closed request(s).\n", n)
	}

	var list []approval.Approval
	if pendingAll {
		list, err = store.List()
	} else {
		list, err = store.Pending()
	}
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	fmt.Printf("%-36s %-10s %-24s %-40s %s\n", "KEY", "STATUS", "ACTION", "REASON", "CREATED")
	for _, a := range list {
		fmt.Printf("%-36s %-10s %-24s %-40s %s\n",
			a.Key,
			a.Status,
			truncate(a.Action, 24),
			truncate(a.Reason, 40),
			a.CreatedAt.Format("15:04:05"),
		)
	}
	return nil
}
