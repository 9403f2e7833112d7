package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/radiocore/datad/internal/api"
	"github.com/radiocore/datad/pkg/cli"
)

func newRequestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requests <slot>",
		Short: "List outstanding connectivity requests for a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid slot %q", args[0])
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			var out []api.RequestSnapshot
			if err := c.get(fmt.Sprintf("/api/slots/%d/requests", slot), &out); err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			t := cli.NewTable("REQUEST ID", "APN TYPE", "PRIORITY", "EXECUTED")
			for _, r := range out {
				t.Row(r.RequestID, r.ApnType, strconv.Itoa(r.Priority), strconv.FormatBool(r.Executed))
			}
			t.Flush()
			return nil
		},
	}
}
