package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/radiocore/datad/pkg/settings"
)

// client talks to a running datactld's debug/status API.
type client struct {
	addr  string
	token string
	hc    *http.Client
}

func newClient() (*client, error) {
	addr := apiAddrFlag
	token := tokenFlag

	if addr == "" || token == "" {
		s, err := settings.Load()
		if err != nil {
			return nil, fmt.Errorf("loading settings: %w", err)
		}
		if addr == "" {
			addr = s.GetAPIAddr()
		}
		if token == "" {
			token = s.BearerToken
		}
	}
	if token == "" {
		return nil, fmt.Errorf("no bearer token: run datactld once to mint one, or pass --token")
	}

	return &client{
		addr:  addr,
		token: token,
		hc:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *client) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, "http://"+c.addr+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", c.addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
