package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/structs"
	"github.com/spf13/cobra"

	"github.com/tombergan/minidump/datarecording"
)

func newShowCmd() *cobra.Command {
	var (
		table  string
		runID  string
		limit  int
		offset int
	)

	c := &cobra.Command{
		Use:   "show <db.sqlite3>",
		Short: "Show the segments or matches saved by record.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := datarecording.OpenRecording(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			params := datarecording.QueryParams{
				OrderBy: "RunID, SegmentIndex",
				Limit:   limit,
				Offset:  offset,
			}
			switch table {
			case datarecording.SegmentsTable:
			case datarecording.MatchesTable:
				params.OrderBy += ", Address"
			default:
				return fmt.Errorf("unknown table %q; want %s or %s", table, datarecording.SegmentsTable, datarecording.MatchesTable)
			}
			if runID != "" {
				params.Where = "RunID = ?"
				params.Args = []any{runID}
			}

			rows, total, err := r.Query(cmd.Context(), table, params)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			for k, row := range rows {
				s := structs.New(row)
				if k == 0 {
					fmt.Fprintln(tw, strings.Join(s.Names(), "\t"))
				}
				var cells []string
				for _, v := range s.Values() {
					cells = append(cells, fmt.Sprint(v))
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d rows\n", len(rows), total)
			return nil
		},
	}

	c.Flags().StringVar(&table, "table", datarecording.MatchesTable, "table to show: segments or matches")
	c.Flags().StringVar(&runID, "run", "", "only rows of this run ID")
	c.Flags().IntVar(&limit, "limit", 0, "maximum number of rows; 0 shows all")
	c.Flags().IntVar(&offset, "offset", 0, "rows to skip, with --limit")

	return c
}
