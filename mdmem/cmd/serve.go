package cmd

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/tombergan/minidump/memview"
	"github.com/tombergan/minidump/minidump"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		chunkSize int
		open      bool
	)

	c := &cobra.Command{
		Use:   "serve <dump>",
		Short: "Serve the memory of a dump over HTTP until interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := minidump.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			s := memview.NewServer(f, filepath.Base(args[0])).
				WithPortNumber(port).
				WithChunkSize(chunkSize)
			url, err := s.StartServer()
			if err != nil {
				return err
			}

			if open {
				if err := browser.OpenURL(url + "/api/dump"); err != nil {
					cmd.PrintErrf("opening browser: %v\n", err)
				}
			}

			<-cmd.Context().Done()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.Shutdown(ctx)
		},
	}

	c.Flags().IntVar(&port, "port", envInt(envPort, 0), "port to serve on; 0 picks a free port")
	c.Flags().IntVar(&chunkSize, "chunk", envInt(envChunkSize, minidump.DefaultChunkSize), "read size of first-match searches")
	c.Flags().BoolVar(&open, "open", false, "open the viewer in a browser")

	return c
}
