package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/dapcheck/pkg/transport"
)

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List connected CMSIS-DAP probes",
	Long: `Enumerate USB devices with a known probe VID/PID pair.

Examples:
  dapcheck probes
  dapcheck probes --serial 12AB`,
	RunE: runProbes,
}

func init() {
	rootCmd.AddCommand(probesCmd)

	probesCmd.Flags().StringVar(&probeSerial, "serial", "", "only list probes whose serial contains this")
}

func runProbes(cmd *cobra.Command, args []string) error {
	serial := cfg.USB.Serial
	if cmd.Flags().Changed("serial") {
		serial = probeSerial
	}

	probes, err := transport.ListProbes(cmd.Context(), serial)
	if err != nil {
		return withCode(ExitSetup, err)
	}

	out := cmd.OutOrStdout()
	if len(probes) == 0 {
		fmt.Fprintln(out, "No probes found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROBE\tVID:PID\tBUS/ADDR")
	for _, p := range probes {
		fmt.Fprintf(w, "%s\t%04x:%04x\t%03d/%03d\n", p.Label(), p.VendorID, p.ProductID, p.Bus, p.Address)
	}
	return w.Flush()
}
