package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/lexiz/internal/client"
	"github.com/abhisek/lexiz/internal/guard"
	"github.com/abhisek/lexiz/internal/store"
)

var circuitCmd = &cobra.Command{
	Use:   "circuit",
	Short: "Inspect or reset the upstream circuit breaker",
}

var circuitStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the circuit state and rate window of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		st, err := client.New(serverURL).CircuitStatus(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

var circuitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Close the circuit of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		st, err := client.New(serverURL).ResetCircuit(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Circuit reset.")
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

var circuitHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded circuit transitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		events, err := s.Events().QueryCircuitEvents(cmd.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No circuit transitions recorded.")
			return nil
		}

		fmt.Fprintf(out, "%-5s  %-19s  %-9s  %-9s  %-8s  %s\n",
			"ID", "Timestamp", "From", "To", "Failures", "Reason")
		fmt.Fprintln(out, strings.Repeat("─", 80))
		for _, e := range events {
			fmt.Fprintf(out, "%-5d  %-19s  %-9s  %-9s  %-8d  %s\n",
				e.ID,
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.From,
				e.To,
				e.Failures,
				e.Reason,
			)
		}
		return nil
	},
}

func printStatus(w io.Writer, st *guard.Status) {
	fmt.Fprintf(w, "State:       %s\n", st.State)
	fmt.Fprintf(w, "Failures:    %d\n", st.Failures)
	if !st.LastFailure.IsZero() {
		fmt.Fprintf(w, "Last fail:   %s\n", st.LastFailure.Local().Format("2006-01-02 15:04:05"))
	}
	if st.RetryAfterSeconds > 0 {
		fmt.Fprintf(w, "Retry in:    %ds\n", st.RetryAfterSeconds)
	}
	if st.TrialInFlight {
		fmt.Fprintln(w, "Trial:       in flight")
	}
	if st.Rate.Limit > 0 {
		fmt.Fprintf(w, "Rate:        %d/%d in %.0fs\n", st.Rate.Used, st.Rate.Limit, st.Rate.WindowSeconds)
	} else {
		fmt.Fprintln(w, "Rate:        unlimited")
	}
	if len(st.RecentErrors) > 0 {
		fmt.Fprintln(w, "Recent errors:")
		for _, e := range st.RecentErrors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}

func init() {
	for _, c := range []*cobra.Command{circuitStatusCmd, circuitResetCmd} {
		c.Flags().String("server", "http://localhost:8080", "Base URL of the lexiz server")
	}
	circuitHistoryCmd.Flags().IntP("limit", "n", 20, "Number of transitions to show")

	circuitCmd.AddCommand(circuitStatusCmd)
	circuitCmd.AddCommand(circuitResetCmd)
	circuitCmd.AddCommand(circuitHistoryCmd)
}
