package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombergan/minidump/minidump"
)

func newStreamsCmd() *cobra.Command {
	var showLists bool

	c := &cobra.Command{
		Use:   "streams <dump>",
		Short: "Print the header and stream directory of a dump.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := minidump.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, f.Header)
			fmt.Fprintln(w, "== STREAMS ==")
			for k, d := range f.Streams {
				fmt.Fprintf(w, "%d: %s\n", k, d)
			}

			if !showLists {
				return nil
			}
			if f.MemoryList != nil {
				fmt.Fprintln(w, f.MemoryList)
			}
			if f.Memory64List != nil {
				fmt.Fprintln(w, f.Memory64List)
			}
			return nil
		},
	}

	c.Flags().BoolVar(&showLists, "lists", false, "also print the decoded memory lists")

	return c
}
