package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yazid-hub/GMOA/internal/db"
	"github.com/yazid-hub/GMOA/internal/models"
)

func newDBCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}
	cmd.AddCommand(newDBMigrateCmd(g))
	cmd.AddCommand(newDBStatusesCmd(g))
	return cmd
}

func newDBMigrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and seed workflow statuses",
		Long:  "Migrates every GMAO table and upserts the work order statuses declared in the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(g.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
			if err := db.SeedStatuses(gormDB, cfg.Workflow.Statuses); err != nil {
				return err
			}
			fmt.Fprintf(out, "Seeded %d workflow statuses\n", len(cfg.Workflow.Statuses))
			return nil
		},
	}
}

func newDBStatusesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "statuses",
		Short: "List the seeded work order statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(g.configPath)
			if err != nil {
				return err
			}
			var statuses []models.WorkflowStatus
			if err := gormDB.Order("name ASC").Find(&statuses).Error; err != nil {
				return fmt.Errorf("list statuses: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPHASE\tFINAL\tDESCRIPTION")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", s.Name, s.Phase, s.Final, s.Description)
			}
			return w.Flush()
		},
	}
}
