// Package cmd provides the command-line interface of mdmem.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/tombergan/minidump/minidump"
)

// Environment variables that provide flag defaults. They may also be set in
// a .env file in the working directory.
const (
	envDebugLevel = "MDMEM_DEBUG_LEVEL"
	envChunkSize  = "MDMEM_CHUNK_SIZE"
	envPort       = "MDMEM_PORT"
	envDB         = "MDMEM_DB"
)

// NewRootCmd returns the mdmem command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	var debugLevel int

	rootCmd := &cobra.Command{
		Use:   "mdmem",
		Short: "mdmem reads and searches the memory saved in minidump files.",
		Long: `mdmem reconstructs the virtual memory of a process from the ` +
			`MemoryListStream or Memory64ListStream of a minidump. It can list ` +
			`memory segments, read and search memory, record results in SQLite, ` +
			`and serve the dump over HTTP.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setDebugLevel(debugLevel)
		},
	}

	rootCmd.PersistentFlags().IntVar(&debugLevel, "debuglevel",
		envInt(envDebugLevel, 0), "debug verbosity level")

	rootCmd.AddCommand(
		newStreamsCmd(),
		newSegmentsCmd(),
		newReadCmd(),
		newSearchCmd(),
		newRecordCmd(),
		newShowCmd(),
		newServeCmd(),
	)

	return rootCmd
}

// Execute loads .env, runs the command line, and exits through atexit so
// that registered flushes run.
func Execute() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("loading .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func setDebugLevel(debugLevel int) {
	minidump.SetDebugLevel(debugLevel, log.Printf)
}

// envInt returns the integer value of the named environment variable, or def
// if it is unset or malformed.
func envInt(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	x, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", name, s, err)
		return def
	}
	return x
}

// parseUint parses a decimal, 0x hex, 0o octal, or 0b binary number.
func parseUint(what, s string) (uint64, error) {
	x, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", what, s, err)
	}
	return x, nil
}

// openAddressSpace opens the named dump and its address space. The caller
// must close the returned file.
func openAddressSpace(filename string) (*minidump.File, *minidump.AddressSpace, error) {
	f, err := minidump.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	as, err := f.AddressSpace()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", filename, err)
	}
	return f, as, nil
}
