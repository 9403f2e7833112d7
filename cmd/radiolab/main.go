// radiolab drives a simulated modem host over SSH for end-to-end testing.
//
// The simulated host speaks the same Radio Facade surface the real D-Bus
// binding talks to, plus a radiolab-ctl helper for fault injection. radiolab
// dials it over SSH and lets an operator or a CI job inject data-call-list
// changes, flap a link, or drop into a shell on the box.
//
// Usage:
//
//	radiolab inject --event list-changed --slot 0 --transport wwan
//	radiolab flap --slot 0 --transport wlan --duration 5s
//	radiolab shell
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/radiocore/datad/pkg/util"
)

var (
	labHost    string
	labUser    string
	labKeyPath string
	labTimeout time.Duration
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "radiolab",
	Short: "Drive a simulated modem host for end-to-end testing",
	Long: `radiolab dials a simulated modem host over SSH and drives its
fault-injection control socket, the same surface a real run of the
control plane daemon would observe over D-Bus.

  radiolab inject --event list-changed --slot 0   # fire a list-changed event
  radiolab flap --slot 0 --transport wlan          # flap a link
  radiolab shell                                   # interactive shell on the host`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&labHost, "host", os.Getenv("DATAD_LAB_HOST"), "lab host address (host:port)")
	rootCmd.PersistentFlags().StringVar(&labUser, "user", envOrDefault("DATAD_LAB_USER", "root"), "SSH user")
	rootCmd.PersistentFlags().StringVar(&labKeyPath, "key", os.Getenv("DATAD_LAB_KEY"), "SSH private key path (falls back to DATAD_LAB_PASSWORD)")
	rootCmd.PersistentFlags().DurationVar(&labTimeout, "timeout", 10*time.Second, "SSH dial timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(newInjectCmd(), newFlapCmd(), newShellCmd())
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
