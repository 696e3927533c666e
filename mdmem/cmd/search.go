package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombergan/minidump/minidump"
)

// searchFlags are shared by the search and record commands.
type searchFlags struct {
	hex       bool
	findFirst bool
	chunkSize int
}

func (sf *searchFlags) register(c *cobra.Command) {
	c.Flags().BoolVar(&sf.hex, "hex", false, "patterns are hex-encoded bytes")
	c.Flags().BoolVar(&sf.findFirst, "first", false, "stop at the first match")
	c.Flags().IntVar(&sf.chunkSize, "chunk", envInt(envChunkSize, minidump.DefaultChunkSize),
		"read size of --first searches")
}

func (sf *searchFlags) pattern(arg string) ([]byte, error) {
	if !sf.hex {
		return []byte(arg), nil
	}
	p, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("bad hex pattern %q: %w", arg, err)
	}
	return p, nil
}

func newSearchCmd() *cobra.Command {
	var (
		sf   searchFlags
		dump bool
	)

	c := &cobra.Command{
		Use:   "search <dump> <pattern>",
		Short: "Search all memory segments for a byte pattern.",
		Long: `Search every memory segment, in descriptor order, and print the ` +
			`virtual address of each match. Overlapping matches are all reported.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern, err := sf.pattern(args[1])
			if err != nil {
				return err
			}

			f, as, err := openAddressSpace(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			matches, err := as.SearchContext(cmd.Context(), pattern, sf.findFirst, sf.chunkSize)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, va := range matches {
				fmt.Fprintf(w, "0x%x\n", va)
				if !dump {
					continue
				}
				s, ok := as.FindSegment(va)
				if !ok {
					continue
				}
				n := min(64, s.EndVirtualAddress()-va)
				data, err := as.Read(va, n)
				if err != nil {
					return err
				}
				fmt.Fprint(w, minidump.Hexdump(data, va))
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no matches")
			}
			return nil
		},
	}

	sf.register(c)
	c.Flags().BoolVar(&dump, "dump", false, "print a hexdump of up to 64 bytes at each match")

	return c
}
