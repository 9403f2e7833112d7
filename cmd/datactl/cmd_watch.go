package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/radiocore/datad/pkg/cli"
	"github.com/radiocore/datad/pkg/settings"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live state transitions and handover decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := apiAddrFlag
			token := tokenFlag
			if addr == "" || token == "" {
				s, err := settings.Load()
				if err != nil {
					return err
				}
				if addr == "" {
					addr = s.GetAPIAddr()
				}
				if token == "" {
					token = s.BearerToken
				}
			}
			if token == "" {
				return fmt.Errorf("no bearer token: run datactld once to mint one, or pass --token")
			}

			u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/events", RawQuery: "token=" + url.QueryEscape(token)}
			conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", u.String(), err)
			}
			defer conn.Close()

			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return fmt.Errorf("event stream closed: %w", err)
				}
				if jsonOutput {
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					continue
				}
				printEvent(cmd, data)
			}
		},
	}
}

func printEvent(cmd *cobra.Command, data []byte) {
	var ev struct {
		Type      string          `json:"type"`
		Timestamp string          `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return
	}
	label := ev.Type
	if ev.Type == "handover" {
		label = cli.Yellow(label)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", ev.Timestamp, label, string(ev.Payload))
}
