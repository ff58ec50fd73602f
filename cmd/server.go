package cmd

import (
	"clipfm/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the clipfm HTTP server",
	Long:  `Start the clipfm HTTP server: link submission, uploads, the track library API and the audio proxy.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
