package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombergan/minidump/minidump"
)

func newReadCmd() *cobra.Command {
	var (
		raw     bool
		ptrSize int
	)

	c := &cobra.Command{
		Use:   "read <dump> <address> [length]",
		Short: "Read memory at a virtual address.",
		Long: `Read length bytes (default 256) at a virtual address and print ` +
			`them as a hexdump. Numbers may be decimal or 0x-prefixed hex. With ` +
			`--pointer, read one pointer of the given size instead.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			va, err := parseUint("address", args[1])
			if err != nil {
				return err
			}
			n := uint64(256)
			if len(args) == 3 {
				if n, err = parseUint("length", args[2]); err != nil {
					return err
				}
			}

			f, as, err := openAddressSpace(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			w := cmd.OutOrStdout()
			if ptrSize != 0 {
				p, err := as.ReadPointer(va, ptrSize)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "0x%x\n", p)
				return nil
			}

			data, err := as.ReadContext(cmd.Context(), va, n)
			if err != nil {
				return err
			}
			if raw {
				_, err = w.Write(data)
				return err
			}
			fmt.Fprint(w, minidump.Hexdump(data, va))
			return nil
		},
	}

	c.Flags().BoolVar(&raw, "raw", false, "write the bytes unformatted")
	c.Flags().IntVar(&ptrSize, "pointer", 0, "read a little-endian pointer of this many bytes (4 or 8)")

	return c
}
