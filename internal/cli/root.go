package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"skymatch/internal/config"
	"skymatch/internal/identify"
	"skymatch/internal/journal"
	"skymatch/internal/logging"
	"skymatch/pkg/skymatch"
)

// app carries the state shared by all commands once the config is loaded.
type app struct {
	configPath string
	verbose    bool
	dbPath     string
	noJournal  bool

	cfg *config.Config
	log *slog.Logger
}

// NewRootCmd creates the root Cobra command.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "skymatch",
		Short: "Identify constellations in night-sky photographs",
		Long: `skymatch extracts star centroids from an image, triangulates them and
votes for the reference constellation whose triangle shapes match best.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "skymatch.toml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "Reference database (overrides match.database)")
	rootCmd.PersistentFlags().BoolVar(&a.noJournal, "no-journal", false, "Do not record identifications")

	rootCmd.AddCommand(newExtractCmd(a))
	rootCmd.AddCommand(newIdentifyCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))
	rootCmd.AddCommand(newRefDBCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	return rootCmd
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.dbPath != "" {
		cfg.Match.Database = a.dbPath
	}
	flags := cmd.Flags()
	if f := flags.Lookup("threshold"); f != nil && f.Changed {
		cfg.Extract.Threshold, _ = flags.GetInt("threshold")
	}
	if f := flags.Lookup("min-area"); f != nil && f.Changed {
		cfg.Extract.MinArea, _ = flags.GetInt("min-area")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	a.log, err = logging.Setup(cfg.Logging)
	return err
}

// addExtractFlags registers the per-run extraction overrides read by setup.
func addExtractFlags(cmd *cobra.Command) {
	cmd.Flags().Int("threshold", 0, "Binarization level in [0, 255] (overrides extract.threshold)")
	cmd.Flags().Int("min-area", 0, "Exclusive minimum blob area in pixels (overrides extract.min_area)")
}

func (a *app) extractor() (*skymatch.Extractor, error) {
	return skymatch.NewExtractor(a.cfg.ExtractorParams())
}

// pipeline builds the extractor and matcher. A missing database is not an
// error here; it surfaces as a result state on every identification.
func (a *app) pipeline() (*skymatch.Pipeline, error) {
	e, err := a.extractor()
	if err != nil {
		return nil, err
	}
	mp, err := a.cfg.MatcherParams()
	if err != nil {
		return nil, err
	}
	m := skymatch.NewMatcherFromFile(a.cfg.Match.Database, mp)
	if err := m.DatabaseErr(); err != nil {
		a.log.Warn("reference database unavailable", "path", a.cfg.Match.Database, "error", err)
	}
	return skymatch.NewPipeline(e, m), nil
}

// openJournal returns nil when journaling is disabled.
func (a *app) openJournal() (*journal.Store, error) {
	if a.noJournal || a.cfg.Journal.Path == "" {
		return nil, nil
	}
	return journal.New(a.cfg.Journal.Path)
}

// service wires a pipeline and journal. The returned close func releases
// the journal.
func (a *app) service() (*identify.Service, func(), error) {
	pipe, err := a.pipeline()
	if err != nil {
		return nil, nil, err
	}
	store, err := a.openJournal()
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal: %w", err)
	}
	svc := &identify.Service{Pipeline: pipe, Store: store, Log: a.log}
	return svc, func() { store.Close() }, nil
}
