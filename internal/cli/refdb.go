package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"skymatch/pkg/skymatch"
)

func newRefDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refdb",
		Short: "Build and inspect reference databases",
	}
	cmd.AddCommand(newRefDBCompileCmd(a))
	cmd.AddCommand(newRefDBListCmd(a))
	return cmd
}

func newRefDBCompileCmd(a *app) *cobra.Command {
	var (
		output     string
		descriptor string
	)

	cmd := &cobra.Command{
		Use:   "compile <catalog.toml>",
		Short: "Compile a star catalog into a reference database",
		Long: `Compile projects each constellation's stars onto a tangent plane,
triangulates them and stores the descriptor of every usable triangle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := skymatch.LoadCatalog(args[0])
			if err != nil {
				return err
			}

			mp, err := a.cfg.MatcherParams()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("descriptor") {
				kind, err := skymatch.ParseDescriptorKind(descriptor)
				if err != nil {
					return err
				}
				// Switching kinds resets the precision to that kind's default.
				if kind != mp.Descriptor {
					mp = skymatch.NewMatcherParams()
					if kind == skymatch.DescriptorAngle {
						mp = skymatch.NewAngleMatcherParams()
					}
				}
			}

			db, err := skymatch.CompileCatalog(catalog, mp)
			if err != nil {
				return err
			}
			if output == "" {
				output = a.cfg.Match.Database
			}
			if err := db.Save(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d constellations (%d %s descriptors) to %s\n",
				len(db.Constellations), db.DescriptorCount(), db.Kind, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (defaults to match.database)")
	cmd.Flags().StringVar(&descriptor, "descriptor", "ratio", "Descriptor kind: ratio or angle")
	return cmd
}

func newRefDBListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [db.json]",
		Short: "List the constellations in a reference database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Match.Database
			if len(args) == 1 {
				path = args[0]
			}
			db, err := skymatch.LoadReferenceDB(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d constellations, %s descriptors\n", path, len(db.Constellations), db.Kind)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, name := range db.Names() {
				fmt.Fprintf(tw, "  %s\t%d\n", name, len(db.Lookup(name).Descriptors))
			}
			return tw.Flush()
		},
	}
}
