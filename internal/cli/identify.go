package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"skymatch/internal/identify"
	"skymatch/internal/watch"
	"skymatch/pkg/skymatch"
)

type fileOutcome struct {
	path string
	id   *skymatch.Identification
	err  error
}

func newIdentifyCmd(a *app) *cobra.Command {
	var overlayDir string

	cmd := &cobra.Command{
		Use:   "identify <image>...",
		Short: "Identify the constellation in one or more images",
		Long: `Identify runs extraction and matching on every image, up to
processing.parallel at a time, and prints one line per image in argument
order. Images that cannot be read are reported and make the command fail;
unmatched images do not.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeJournal, err := a.service()
			if err != nil {
				return err
			}
			defer closeJournal()

			if overlayDir != "" {
				if err := os.MkdirAll(overlayDir, 0o755); err != nil {
					return err
				}
			}

			outcomes := make([]fileOutcome, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(a.cfg.Processing.Parallel)
			for i, path := range args {
				g.Go(func() error {
					o := fileOutcome{path: path}
					data, err := os.ReadFile(path)
					if err == nil {
						o.id, _, err = svc.Run(ctx, identify.Request{Source: path, Data: data})
					}
					if err == nil && overlayDir != "" {
						err = skymatch.RenderOverlay(o.id.Extraction, o.id.Result, watch.OverlayPath(overlayDir, path))
					}
					o.err = err
					outcomes[i] = o
					// Per-file failures are reported, not fatal to the batch.
					return ctx.Err()
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			var failures *multierror.Error
			for _, o := range outcomes {
				printOutcome(cmd.OutOrStdout(), o)
				if o.err != nil {
					failures = multierror.Append(failures, fmt.Errorf("%s: %w", o.path, o.err))
				}
			}
			return failures.ErrorOrNil()
		},
	}
	cmd.Flags().StringVar(&overlayDir, "overlay", "", "Write an overlay JPEG per image into this directory")
	addExtractFlags(cmd)
	return cmd
}

func printOutcome(w io.Writer, o fileOutcome) {
	name := filepath.Base(o.path)
	if o.err != nil {
		fmt.Fprintf(w, "%s: error: %v\n", name, o.err)
		return
	}
	res := o.id.Result
	fmt.Fprintf(w, "%s: %s (%d stars", name, res.Status, len(o.id.Extraction.Points))
	if res.Matched() {
		fmt.Fprintf(w, ", %d/%d triangles", len(res.VotingTriangles), len(res.Triangles))
	}
	fmt.Fprintln(w, ")")
	if o.id.Err != nil {
		fmt.Fprintf(w, "  %v\n", o.id.Err)
	}
}
