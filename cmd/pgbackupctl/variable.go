package main

import (
	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/dispatch"
)

var variableCmd = &cobra.Command{
	Use:     "variable",
	Aliases: []string{"var"},
	Short:   "Manage runtime session variables (SET/RESET/SHOW VARIABLE)",
}

var variableSetCmd = &cobra.Command{
	Use:   "set NAME VALUE",
	Short: "Set a runtime variable",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagSetVariable, VariableName: args[0], VariableValue: args[1]})
	},
}

var variableResetCmd = &cobra.Command{
	Use:   "reset NAME",
	Short: "Reset a runtime variable to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagResetVariable, VariableName: args[0]})
	},
}

var variableShowCmd = &cobra.Command{
	Use:   "show [NAME]",
	Short: "Show one or all runtime variables",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagShowVariables})
		}
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagShowVariable, VariableName: args[0]})
	},
}

var workersShowCmd = &cobra.Command{
	Use:   "workers",
	Short: "Show the launcher's occupied worker slots (SHOW WORKERS)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatch(cmd, dispatch.Request{Tag: dispatch.TagShowWorkers})
	},
}

func init() {
	variableCmd.AddCommand(variableSetCmd, variableResetCmd, variableShowCmd)
	rootCmd.AddCommand(variableCmd)
	rootCmd.AddCommand(workersShowCmd)
}
