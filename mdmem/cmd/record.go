package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombergan/minidump/datarecording"
)

func newRecordCmd() *cobra.Command {
	var (
		sf     searchFlags
		dbPath string
	)

	c := &cobra.Command{
		Use:   "record <dump> [pattern...]",
		Short: "Record the segments of a dump and the matches of patterns in SQLite.",
		Long: `Record the memory segments of a dump, and every match of each ` +
			`pattern, in a new SQLite database. The database is named after --db ` +
			`with a .sqlite3 suffix; without --db a unique name is generated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patterns [][]byte
			for _, arg := range args[1:] {
				p, err := sf.pattern(arg)
				if err != nil {
					return err
				}
				patterns = append(patterns, p)
			}

			dbPath = strings.TrimSuffix(dbPath, ".sqlite3")
			if dbPath != "" {
				if _, err := os.Stat(dbPath + ".sqlite3"); err == nil {
					return fmt.Errorf("%s.sqlite3 already exists", dbPath)
				}
			}

			f, as, err := openAddressSpace(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rec := datarecording.New(dbPath)
			defer rec.Close()

			sess := datarecording.NewSession(rec, filepath.Base(args[0]))
			segs := as.Segments()
			sess.RecordSegments(segs)

			for _, p := range patterns {
				matches, err := as.SearchContext(cmd.Context(), p, sf.findFirst, sf.chunkSize)
				if err != nil {
					return err
				}
				sess.RecordMatches(p, segs, matches)
				fmt.Fprintf(cmd.OutOrStdout(), "%q: %d matches\n", p, len(matches))
			}

			sess.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %d segments as run %s\n", len(segs), sess.RunID)
			return nil
		},
	}

	sf.register(c)
	c.Flags().StringVar(&dbPath, "db", os.Getenv(envDB), "database name, without the .sqlite3 suffix")

	return c
}
