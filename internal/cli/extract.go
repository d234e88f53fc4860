package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func newExtractCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract <image>",
		Short: "Print the star centroids found in an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			e, err := a.extractor()
			if err != nil {
				return err
			}
			res, err := e.Extract(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Points)
			}

			fmt.Fprintf(out, "Image size:  %d x %d\n", res.Width, res.Height)
			fmt.Fprintf(out, "Stars found: %d\n", len(res.Points))
			if len(res.Areas) > 0 {
				med, mad := medianMAD(res.Areas)
				fmt.Fprintf(out, "Area:        %.1f +/- %.1f px\n", med, mad)
			}
			for i, p := range res.Points {
				fmt.Fprintf(out, "%4d  %8.2f %8.2f  %3d\n", i, p.X, p.Y, res.Areas[i])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print points as JSON")
	addExtractFlags(cmd)
	return cmd
}

// medianMAD returns the median and the scaled median absolute deviation.
func medianMAD(values []int) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := make([]float64, len(values))
	for i, v := range values {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)
	median := middle(sorted)

	deviations := make([]float64, len(sorted))
	for i := range sorted {
		deviations[i] = math.Abs(sorted[i] - median)
	}
	sort.Float64s(deviations)
	return median, 1.4826 * middle(deviations)
}

func middle(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}
