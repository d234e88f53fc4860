package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"skymatch/internal/identify"
	"skymatch/internal/server"
	"skymatch/internal/watch"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr     string
		watchDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the identification HTTP API",
		Long: `Serve exposes identification over HTTP. With --watch, images
dropped into a directory are identified as well and show up on the
/api/stream websocket next to API requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Server.Addr
			}
			svc, closeJournal, err := a.service()
			if err != nil {
				return err
			}
			defer closeJournal()

			srv := server.NewServer(addr, svc, a.cfg.Server.MaxUploadMB, a.log)
			svc.Notify = srv.Hub().Publish

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.Start(ctx) })
			if watchDir != "" {
				w := a.watcher(watchDir, svc)
				g.Go(func() error { return w.Run(ctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "Listen address (overrides server.addr)")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Also identify images appearing in this directory")
	addExtractFlags(cmd)
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		overlayDir string
		scan       bool
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Identify images as they appear in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no directory given and watch.dir is not set")
			}
			if cmd.Flags().Changed("overlay-dir") {
				a.cfg.Watch.OverlayDir = overlayDir
			}

			svc, closeJournal, err := a.service()
			if err != nil {
				return err
			}
			defer closeJournal()

			w := a.watcher(dir, svc)
			if scan {
				n, err := w.Scan(cmd.Context())
				if err != nil {
					return err
				}
				a.log.Info("scanned existing images", "dir", dir, "count", n)
			}
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&overlayDir, "overlay-dir", "", "Write overlays here (overrides watch.overlay_dir)")
	cmd.Flags().BoolVar(&scan, "scan", false, "Identify images already in the directory first")
	addExtractFlags(cmd)
	return cmd
}

func (a *app) watcher(dir string, svc *identify.Service) *watch.Watcher {
	return &watch.Watcher{
		Dir:        dir,
		Extensions: a.cfg.Watch.Extensions,
		OverlayDir: a.cfg.Watch.OverlayDir,
		Service:    svc,
		Log:        a.log,
	}
}
