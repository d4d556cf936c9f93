package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/draft-protocol/draftd/internal/domain"
	"github.com/draft-protocol/draftd/internal/engine"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	passColor   = color.New(color.FgGreen)
	failColor   = color.New(color.FgRed)
	warnColor   = color.New(color.FgYellow)
)

func tierColor(t domain.Tier) *color.Color {
	switch t {
	case domain.TierConsequential:
		return failColor
	case domain.TierStandard:
		return warnColor
	case domain.TierCasual:
		return passColor
	default:
		return color.New(color.Faint)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newClassifyCommand(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify <message>",
		Short: "Classify a message into a risk tier without opening a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(root, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			c := a.svc.Classify(cmd.Context(), strings.Join(args, " "))
			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, c)
			}
			printClassification(w, c)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printClassification(w io.Writer, c engine.Classification) {
	fmt.Fprint(w, "Tier:       ")
	tierColor(c.Tier).Fprintln(w, c.Tier)
	fmt.Fprintf(w, "Confidence: %.2f\n", c.Confidence)
	fmt.Fprintf(w, "Reasoning:  %s\n", c.Reasoning)
}

func newStatusCommand(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [session-id]",
		Short: "Show a session's state (defaults to the active session)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(root, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			st, err := a.svc.Status(cmd.Context(), id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, st)
			}
			printStatus(w, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStatus(w io.Writer, st *engine.Status) {
	headerColor.Fprintf(w, "=== Session %s ===\n", st.SessionID)
	fmt.Fprint(w, "Tier:        ")
	tierColor(st.Tier).Fprintln(w, st.Tier)
	fmt.Fprintf(w, "Intent:      %s\n", st.Intent)
	fmt.Fprintf(w, "Created:     %s\n", st.CreatedAt.Format("2006-01-02 15:04:05"))
	if st.ClosedAt != nil {
		fmt.Fprintf(w, "Closed:      %s\n", st.ClosedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprint(w, "Gate:        ")
	switch {
	case st.GateOverridden:
		warnColor.Fprintln(w, "OVERRIDDEN")
	case st.GatePassed:
		passColor.Fprintln(w, st.Gate)
	default:
		failColor.Fprintln(w, st.Gate)
	}
	fmt.Fprintf(w, "Assumptions: %d\n", st.Assumptions)
	fmt.Fprintf(w, "Reviewed:    %t\n", st.ReviewDone)

	headerColor.Fprintln(w, "\nDimensions:")
	labels := make([]string, 0, len(st.DimensionSummary))
	for k := range st.DimensionSummary {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool {
		return dimensionOrder(labels[i]) < dimensionOrder(labels[j])
	})
	for _, label := range labels {
		fmt.Fprintf(w, "  %-36s %s\n", label, formatSummary(st.DimensionSummary[label]))
	}
}

// dimensionOrder sorts "K (Name)" labels in D, R, A, F, T order.
func dimensionOrder(label string) int {
	for i, k := range domain.Dimensions {
		if strings.HasPrefix(label, string(k)+" ") {
			return i
		}
	}
	return len(domain.Dimensions)
}

func formatSummary(v any) string {
	counts, ok := v.(map[string]int)
	if !ok {
		return fmt.Sprint(v)
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func newAuditCommand(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "audit [session-id]",
		Short: "Print a session's audit trail in write order (defaults to the active session)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(root, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			entries, err := a.svc.Audit(cmd.Context(), id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, entries)
			}
			printAudit(w, entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printAudit(w io.Writer, entries []domain.AuditEntry) {
	for _, e := range entries {
		fmt.Fprintf(w, "%s  ", e.CreatedAt.Format("2006-01-02 15:04:05"))
		actionColor(e.Action).Fprintf(w, "%-18s %s", e.Tool, e.Action)
		if e.Detail != "" {
			fmt.Fprintf(w, "  %s", e.Detail)
		}
		fmt.Fprintln(w)
	}
}

func actionColor(action string) *color.Color {
	switch {
	case strings.Contains(action, "REJECTED"), strings.HasPrefix(action, "FAIL"):
		return failColor
	case strings.Contains(action, "OVERRIDDEN"), strings.Contains(action, "->"), action == "superseded":
		return warnColor
	case strings.HasPrefix(action, "PASS"):
		return passColor
	default:
		return color.New(color.Reset)
	}
}
