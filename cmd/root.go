package cmd

import (
	"github.com/carousell/ct-go/pkg/logger/log"
	"github.com/ofirdahan/poalim-chat/internal/app"
	"github.com/ofirdahan/poalim-chat/internal/server"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "poalim-chat",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		app.Invoke(
			server.StartServer,
		).Run()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
