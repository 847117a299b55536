package main

import (
	"github.com/spf13/cobra"

	"github.com/small-frappuccino/plana/pkg/app"
	"github.com/small-frappuccino/plana/pkg/config"
)

func newRootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Discord bot backed by the Plana API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       app.Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd, envFiles)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load variables from this .env file before the environment fallback")

	root.AddCommand(newRunCmd(&envFiles))
	root.AddCommand(newPublishCmd(&envFiles))
	return root
}

func newRunCmd(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd, *envFiles)
		},
	}
}

func runBot(cmd *cobra.Command, envFiles []string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	return app.Run(cmd.Context(), cfg)
}
