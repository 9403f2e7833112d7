package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive shell on the lab host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial()
			if err != nil {
				return err
			}
			defer client.Close()

			session, err := client.NewSession()
			if err != nil {
				return fmt.Errorf("opening lab session: %w", err)
			}
			defer session.Close()

			session.Stdout = os.Stdout
			session.Stderr = os.Stderr
			session.Stdin = os.Stdin

			fd := int(os.Stdin.Fd())
			if term.IsTerminal(fd) {
				state, err := term.MakeRaw(fd)
				if err == nil {
					defer term.Restore(fd, state)
				}

				w, h, err := term.GetSize(fd)
				if err != nil {
					w, h = 80, 24
				}
				modes := ssh.TerminalModes{
					ssh.ECHO:          1,
					ssh.TTY_OP_ISPEED: 14400,
					ssh.TTY_OP_OSPEED: 14400,
				}
				if err := session.RequestPty("xterm", h, w, modes); err != nil {
					return fmt.Errorf("requesting pty: %w", err)
				}
			}

			if err := session.Shell(); err != nil {
				return fmt.Errorf("starting shell: %w", err)
			}
			return session.Wait()
		},
	}
}
