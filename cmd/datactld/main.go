// datactld is the mobile-data control plane daemon: it loads carrier
// config and the APN database, binds to each configured SIM slot's
// Data Service and Policy Oracle remote packages over D-Bus, and runs
// the engine that turns connectivity requests into data sessions.
//
// Usage:
//
//	datactld run                 # start the daemon in the foreground
//	datactld run --slots 2        # dual-SIM
//	datactld run --legacy          # no WLAN/IWLAN leg, single-transport mode
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/radiocore/datad/pkg/util"
)

var (
	configDir string
	apiAddr   string
	verbose   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "datactld",
	Short:             "Mobile-data control plane daemon",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("info")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", "/etc/datad", "engine configuration directory (config.yaml, apns.db)")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", "127.0.0.1:8723", "debug/status API listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(newRunCmd())
}
