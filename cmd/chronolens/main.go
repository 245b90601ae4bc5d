package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chronolens/chronolens/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "chronolens",
	Short: "Conversational memory over a screen and audio activity index",
	Long: `chronolens turns chat questions like "what was I working on yesterday?"
into structured queries against a local activity index, retrieves matching
screen and audio captures, and grounds a model response in them.

Run "chronolens serve" to expose the pipeline over HTTP, or "chronolens ask"
to run a single turn in process.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("chronolens %s (commit %s, built %s)\n",
			version.Version, version.Commit, version.Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
