package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombergan/minidump/minidump"
)

func newSegmentsCmd() *cobra.Command {
	var checkOverlap bool

	c := &cobra.Command{
		Use:   "segments <dump>",
		Short: "List the memory segments of a dump.",
		Long: `List the memory segments of a dump, in descriptor order. Segments ` +
			`come from the Memory64ListStream if the dump has one, else from ` +
			`the MemoryListStream.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := minidump.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			segs, err := f.Segments()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, strings.Join(minidump.TableHeader, "\t")+"\t")
			for _, row := range segs.Table() {
				fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d segments, 0x%x bytes\n", len(segs), segs.TotalSize())

			if checkOverlap {
				for _, p := range segs.Overlapping() {
					fmt.Fprintf(cmd.OutOrStdout(), "overlap: [%d] %s and [%d] %s\n", p[0], segs[p[0]], p[1], segs[p[1]])
				}
			}
			return nil
		},
	}

	c.Flags().BoolVar(&checkOverlap, "overlap", false, "report segments whose address ranges overlap")

	return c
}
