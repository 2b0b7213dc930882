package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globals holds the flags shared by every subcommand.
type globals struct {
	configPath string
	actorID    string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "gmao",
		Short:         "GMAO: maintenance work orders, checklists and repair requests",
		Long:          "gmao manages checklist templates, executes maintenance work orders and follows the repair requests they raise.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "gmao.yaml", "path to GMAO config file")
	cmd.PersistentFlags().StringVar(&g.actorID, "as", os.Getenv("GMAO_USER"), "user ID performing the operation (default $GMAO_USER)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd(g))
	cmd.AddCommand(newUserCmd(g))
	cmd.AddCommand(newTeamCmd(g))
	cmd.AddCommand(newAssetCmd(g))
	cmd.AddCommand(newTemplateCmd(g))
	cmd.AddCommand(newWorkOrderCmd(g))
	cmd.AddCommand(newRepairCmd(g))
	cmd.AddCommand(newMediaCmd(g))
	cmd.AddCommand(newPlanCmd(g))
	cmd.AddCommand(newInboxCmd(g))
	cmd.AddCommand(newDashboardCmd(g))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gmao %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
