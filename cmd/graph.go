package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/streetsim/streetsim/sim/geo"
	"github.com/streetsim/streetsim/sim/graph"
)

var (
	graphPlace string
	graphForce bool
	graphOut   string
	graphFlood string
)

// graphCmd resolves a place into a node-link JSON file a scenario can load.
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Download the street graph of a place as node-link JSON",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		res, closeRes, err := newResolver(cmd.Context(), cachePath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		defer closeRes()

		g, err := res.ResolveGraph(cmd.Context(), graphPlace, graphForce)
		if err != nil {
			logrus.Fatalf("Failed to resolve graph: %v", err)
		}
		if graphFlood != "" {
			if g, err = res.AnnotateFloodDepth(cmd.Context(), g, geo.FloodGroup(graphFlood), graphForce); err != nil {
				logrus.Fatalf("Failed to look up flood depths: %v", err)
			}
		}
		err = writeOutput(graphOut, os.Stdout, func(w io.Writer) error {
			return graph.WriteNodeLinkData(w, g)
		})
		if err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	graphCmd.Flags().StringVar(&graphPlace, "place", "", "Place name to geocode")
	graphCmd.Flags().BoolVar(&graphForce, "force", false, "Bypass the cache and fetch again")
	graphCmd.Flags().StringVar(&graphOut, "out", "-", "Output file (- for stdout)")
	graphCmd.Flags().StringVar(&graphFlood, "flood-depth", "", "Annotate nodes with hazard-map flood depth (max, planned, none)")
	_ = graphCmd.MarkFlagRequired("place")

	rootCmd.AddCommand(graphCmd)
}
