// Command graphdemo is a reference host: it loads a graph topology from
// YAML, wires it with graph.Coordinator, and bounces it offline through
// the wavio/analyzer example nodes — exercising non-realtime mode and the
// exchange's busy-wait path end to end outside of any test.
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

var topologyPath string

var rootCmd = &cobra.Command{
	Use:   "graphdemo",
	Short: "Build and bounce an audiograph topology offline",
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Load a topology YAML file and bounce it to its wav_out node(s)",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := loadTopology(topologyPath)
		if err != nil {
			return err
		}

		bg, err := buildGraph(t)
		if err != nil {
			return err
		}

		started := time.Now()
		blocks, err := runBounce(bg, t)
		if err != nil {
			return err
		}
		fmt.Printf("bounced %d blocks (%d samples) in %s\n", blocks, blocks*t.BlockSize, time.Since(started))
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVarP(&topologyPath, "topology", "t", "topology.yaml", "path to the topology YAML file")
	rootCmd.AddCommand(renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("graphdemo: %v", err)
	}
}
