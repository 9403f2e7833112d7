package main

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/radiocore/datad/internal/metrics"
	"github.com/radiocore/datad/pkg/cli"
)

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show handover/retry/failure outcome counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			var snap metrics.Snapshot
			if err := c.get("/api/metrics", &snap); err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			t := cli.NewTable("COUNTER", "VALUE")
			t.Row("handovers_succeeded", strconv.FormatInt(snap.HandoversSucceeded, 10))
			t.Row("handovers_fallback", strconv.FormatInt(snap.HandoversFallback, 10))
			t.Row("setup_retries", strconv.FormatInt(snap.SetupRetries, 10))
			t.Row("permanent_failures", strconv.FormatInt(snap.PermanentFailures, 10))
			t.Flush()
			return nil
		},
	}
}
