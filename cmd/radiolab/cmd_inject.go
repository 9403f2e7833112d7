package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	injectEvent     string
	injectSlot      int
	injectTransport string
	injectCid       int
)

// injectEnvelope mirrors the JSON the lab's radiolab-ctl helper expects on
// its control socket: enough to drive a data_call_list_changed signal or a
// binding_changed(false) edge on the simulated Data Service Binding.
type injectEnvelope struct {
	Event     string `json:"event"`
	Slot      int    `json:"slot"`
	Transport string `json:"transport"`
	Cid       int    `json:"cid,omitempty"`
}

func newInjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Inject a modem simulator event over the lab control socket",
		Long: `inject fires a single simulator event through radiolab-ctl on
the lab host, driving the engine under test through its D-Bus binding
exactly as a real modem would.

Known --event values: list-changed, binding-lost, binding-restored.

  radiolab inject --event list-changed --slot 0 --transport wwan --cid 5
  radiolab inject --event binding-lost --slot 0 --transport wlan`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if injectEvent == "" {
				return fmt.Errorf("--event is required")
			}

			payload, err := json.Marshal(injectEnvelope{
				Event:     injectEvent,
				Slot:      injectSlot,
				Transport: injectTransport,
				Cid:       injectCid,
			})
			if err != nil {
				return err
			}

			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Close()

			remoteCmd := fmt.Sprintf("echo %s | radiolab-ctl inject", shellQuote(string(payload)))
			out, err := runRemote(client, remoteCmd)
			if err != nil {
				return fmt.Errorf("injecting event: %w (%s)", err, out)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "injected %s on slot %d (%s)\n", injectEvent, injectSlot, injectTransport)
			return nil
		},
	}

	cmd.Flags().StringVar(&injectEvent, "event", "", "event to inject (list-changed, binding-lost, binding-restored)")
	cmd.Flags().IntVar(&injectSlot, "slot", 0, "SIM slot")
	cmd.Flags().StringVar(&injectTransport, "transport", "wwan", "transport (wwan, wlan)")
	cmd.Flags().IntVar(&injectCid, "cid", 0, "connection id, for list-changed events")
	return cmd
}
