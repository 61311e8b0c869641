package main

import (
	"github.com/spf13/cobra"
)

func templatesCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "Show the list of algo templates and their params",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := env.engine()
			if err != nil {
				return err
			}
			return e.DumpTemplates(cmd.OutOrStdout())
		},
	}
}

func paramsCommand(env *environment) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "params <template>",
		Short: "Show params of a new instance of template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env.engine()
			if err != nil {
				return err
			}
			a, err := e.CreateAlgo(args[0], "", 0, "")
			if err != nil {
				return err
			}
			return e.DumpConfig(cmd.OutOrStdout(), a, raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "dump config structures")
	return cmd
}
