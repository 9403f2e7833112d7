package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

var (
	flapSlot      int
	flapTransport string
	flapDuration  time.Duration
)

func newFlapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flap",
		Short: "Drop and restore a transport's binding to exercise reconnect handling",
		Long: `flap is shorthand for a binding-lost injection followed, after
--duration, by a binding-restored injection — drives the same
binding_changed(false) then binding_changed(true) sequence a real
name-owner loss and reacquire would produce.

  radiolab flap --slot 0 --transport wlan --duration 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := fireFlapEvent(client, "binding-lost"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "slot %d (%s) binding dropped, restoring in %s\n", flapSlot, flapTransport, flapDuration)

			time.Sleep(flapDuration)

			if err := fireFlapEvent(client, "binding-restored"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "slot %d (%s) binding restored\n", flapSlot, flapTransport)
			return nil
		},
	}

	cmd.Flags().IntVar(&flapSlot, "slot", 0, "SIM slot")
	cmd.Flags().StringVar(&flapTransport, "transport", "wwan", "transport (wwan, wlan)")
	cmd.Flags().DurationVar(&flapDuration, "duration", 5*time.Second, "time the binding stays down")
	return cmd
}

func fireFlapEvent(client *ssh.Client, event string) error {
	payload, err := json.Marshal(injectEnvelope{
		Event:     event,
		Slot:      flapSlot,
		Transport: flapTransport,
	})
	if err != nil {
		return err
	}

	remoteCmd := fmt.Sprintf("echo %s | radiolab-ctl inject", shellQuote(string(payload)))
	out, err := runRemote(client, remoteCmd)
	if err != nil {
		return fmt.Errorf("injecting %s: %w (%s)", event, err, out)
	}
	return nil
}
