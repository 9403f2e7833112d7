package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/radiocore/datad/pkg/util"
)

// dial opens an SSH connection to the configured lab host.
func dial() (*ssh.Client, error) {
	if labHost == "" {
		return nil, fmt.Errorf("no lab host configured: pass --host or set DATAD_LAB_HOST")
	}

	config := &ssh.ClientConfig{
		User:            labUser,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         labTimeout,
	}

	if labKeyPath != "" {
		key, err := os.ReadFile(labKeyPath)
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

	util.WithComponent("radiolab").WithField("host", labHost).Debug("dialing lab host")

	client, err := ssh.Dial("tcp", labHost, config)
	if err != nil {
		return nil, fmt.Errorf("dialing lab host %s: %w", labHost, err)
	}
	return client, nil
}

// runRemote runs a single command on the lab host and returns its combined
// stdout/stderr.
func runRemote(client *ssh.Client, cmd string) (string, error) {
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

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
