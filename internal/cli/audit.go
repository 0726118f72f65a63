package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaseai/chaseai/internal/audit"
)

var (
	tailLines  int
	tailJSON   bool
	tailPort   uint16
	tailAction string
	tailSince  time.Duration
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().BoolVar(&tailJSON, "json", false, "Output as JSON")
	auditTailCmd.Flags().Uint16Var(&tailPort, "port", 0, "Only entries for this port")
	auditTailCmd.Flags().StringVar(&tailAction, "action", "", "Only entries for this action")
	auditTailCmd.Flags().DurationVar(&tailSince, "since", 0, "Only entries newer than this (e.g. 1h)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained log of verification decisions.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent verification decisions",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

func auditPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return paths().AuditLog
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(auditPath(args))
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{Port: tailPort, Action: tailAction}
	if tailSince > 0 {
		filter.From = time.Now().Add(-tailSince)
	}

	result, err := audit.Query(auditPath(args), filter)
	if err != nil {
		return err
	}
	if tailLines > 0 && len(result.Entries) > tailLines {
		result.Entries = result.Entries[len(result.Entries)-tailLines:]
	}

	if tailJSON {
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Print(audit.FormatTimeline(result))
	return nil
}
