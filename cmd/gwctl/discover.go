package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gwlink/gwlink-go/pkg/discovery"
)

func newDiscoverCommand(flags *globalFlags) *cobra.Command {
	var (
		timeout time.Duration
		iface   string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the local network for gateways",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}

			cfg := discovery.DefaultBrowserConfig()
			cfg.BrowseTimeout = timeout
			cfg.Interface = iface
			browser := discovery.NewBrowser(cfg)
			defer browser.Stop()

			logger.Debug("browsing", "service", discovery.ServiceType, "timeout", timeout)
			gateways, err := browser.Collect(cmd.Context())
			if err != nil {
				return err
			}
			printGateways(cmd.OutOrStdout(), gateways)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.BrowseTimeout, "How long to browse")
	cmd.Flags().StringVar(&iface, "interface", "", "Restrict browsing to this network interface")
	return cmd
}

func printGateways(w io.Writer, gateways []*discovery.Gateway) {
	if len(gateways) == 0 {
		fmt.Fprintln(w, "No gateways found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tADDRESSES")
	for _, gw := range gateways {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", gw.Name(), gw.URL(), strings.Join(gw.Addresses, ","))
	}
	tw.Flush()
}
