package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/radiocore/datad/internal/api"
	"github.com/radiocore/datad/pkg/cli"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <slot>",
		Short: "List live data connection sessions for a slot",
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
			var out []api.SessionSnapshot
			if err := c.get(fmt.Sprintf("/api/slots/%d/sessions", slot), &out); err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			t := cli.NewTable("SESSION ID", "TRANSPORT", "STATE", "CID")
			for _, s := range out {
				state := s.State
				if state == "active" {
					state = cli.Green(state)
				}
				t.Row(strconv.Itoa(s.SessionID), s.Transport, state, strconv.Itoa(s.Cid))
			}
			t.Flush()
			return nil
		},
	}
}
