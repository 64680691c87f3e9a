package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "Chorus: Slack-native multi-agent orchestrator",
	Long: color.CyanString(logo) + `
Chorus binds one Claude-backed agent per Slack channel, each with its own
sandboxed workspace, tool loop, and permission profile.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
