//go:build e2e

package testutil

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// SkipIfNoLab skips the test if no simulated modem host is reachable.
// The host runs a modem simulator that speaks the same Radio Facade
// surface as the real binding, reachable over SSH for command injection.
func SkipIfNoLab(t *testing.T) {
	t.Helper()

	if LabHost() == "" {
		t.Skip("no radio lab host configured: set DATAD_LAB_HOST")
	}

	client, err := LabClient(t)
	if err != nil {
		t.Skipf("radio lab host not reachable: %v", err)
	}
	client.Close()
}

// LabHost returns the address (host:port) of the simulated modem host.
func LabHost() string {
	return os.Getenv("DATAD_LAB_HOST")
}

// LabClient dials the simulated modem host over SSH using credentials from
// DATAD_LAB_USER / DATAD_LAB_PASSWORD (or DATAD_LAB_KEY for a private key file).
func LabClient(t *testing.T) (*ssh.Client, error) {
	t.Helper()

	host := LabHost()
	if host == "" {
		return nil, fmt.Errorf("DATAD_LAB_HOST not set")
	}

	config := &ssh.ClientConfig{
		User:            envOrDefault("DATAD_LAB_USER", "root"),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}

	if keyPath := os.Getenv("DATAD_LAB_KEY"); keyPath != "" {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading lab SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing lab SSH key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	} else {
		config.Auth = []ssh.AuthMethod{ssh.Password(os.Getenv("DATAD_LAB_PASSWORD"))}
	}

	client, err := ssh.Dial("tcp", host, config)
	if err != nil {
		return nil, fmt.Errorf("dialing lab host %s: %w", host, err)
	}
	return client, nil
}

// RunLabCommand runs a single command on the simulated modem host and
// returns its combined stdout/stderr.
func RunLabCommand(t *testing.T, client *ssh.Client, cmd string) (string, error) {
	t.Helper()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening lab session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	if err := session.Run(cmd); err != nil {
		return out.String(), fmt.Errorf("running %q: %w", cmd, err)
	}
	return out.String(), nil
}

// InjectModemEvent writes a simulator control event (e.g. a qualified
// networks change or a radio-state flip) into the lab modem's control
// socket, driving the engine under test through its dbus binding.
func InjectModemEvent(t *testing.T, client *ssh.Client, eventJSON string) error {
	t.Helper()

	cmd := fmt.Sprintf("echo %s | radiolab-ctl inject", shellQuote(eventJSON))
	out, err := RunLabCommand(t, client, cmd)
	if err != nil {
		return fmt.Errorf("injecting modem event: %w (%s)", err, out)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
