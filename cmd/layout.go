package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/flowkey/internal/core/flow"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the canonical flow record layout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLayout(cmd.OutOrStdout())
	},
}

func runLayout(w io.Writer) error {
	fmt.Fprintf(w, "flow record: %d bytes, %d words\n\n", flow.Size, flow.U64s)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tOFFSET\tSIZE\tWORD")
	for _, s := range flow.Slots {
		last := (s.End() - 1) / 8
		word := fmt.Sprint(s.Word())
		if last != s.Word() {
			word = fmt.Sprintf("%d-%d", s.Word(), last)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Name, s.Offset, s.Size, word)
	}
	return tw.Flush()
}
