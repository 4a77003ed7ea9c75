package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/dapcheck/pkg/vector"
)

var listCmd = &cobra.Command{
	Use:   "list [suite]",
	Short: "List suites, or the vectors of one suite",
	Long: `Without arguments, list every suite in the catalog. With a suite name,
list its vectors with their command family and request bytes.

Examples:
  dapcheck list
  dapcheck list full
  dapcheck list --vectors my.dapv mine`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringSliceVar(&vectorFiles, "vectors", nil, "additional vector notation files")
}

func runList(cmd *cobra.Command, args []string) error {
	files := cfg.Vectors
	if cmd.Flags().Changed("vectors") {
		files = append(append([]string(nil), files...), vectorFiles...)
	}
	cat, err := loadCatalog(files)
	if err != nil {
		return withCode(ExitSetup, err)
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	if len(args) == 0 {
		fmt.Fprintln(w, "SUITE\tVECTORS\tDESCRIPTION")
		for _, s := range cat.Suites() {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.Name, s.Len(), s.Description)
		}
		return w.Flush()
	}

	s, err := cat.Suite(args[0])
	if err != nil {
		return withCode(ExitSetup, err)
	}

	fmt.Fprintf(out, "Suite %s: %d vectors\n", s.Name, s.Len())
	if s.Description != "" {
		fmt.Fprintf(out, "%s\n", s.Description)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(w, "NAME\tFAMILY\tREQUEST")
	for _, v := range s.Vectors() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.Name(), v.Family(), requestHex(v))
	}
	return w.Flush()
}

// requestHex renders the first bytes of a request, eliding long payloads.
func requestHex(v vector.Vector) string {
	const max = 12
	in := v.Input()
	if len(in) <= max {
		return fmt.Sprintf("% x", in)
	}
	return fmt.Sprintf("% x ... [%d]", in[:max], len(in))
}
