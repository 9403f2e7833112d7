package main

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/radiocore/datad/internal/api"
	"github.com/radiocore/datad/pkg/cli"
)

func newSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the Data-Enabled Settings gate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			var snap api.SettingsSnapshot
			if err := c.get("/api/settings", &snap); err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			enabled := strconv.FormatBool(snap.DataEnabled)
			if snap.DataEnabled {
				enabled = cli.Green(enabled)
			} else {
				enabled = cli.Red(enabled)
			}
			t := cli.NewTable("SETTING", "VALUE")
			t.Row("data_enabled", enabled)
			t.Flush()
			return nil
		},
	}
}
