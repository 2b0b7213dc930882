package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/plan"
)

func newPlanCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preventive maintenance plans",
	}
	cmd.AddCommand(newPlanCreateCmd(g))
	cmd.AddCommand(newPlanListCmd(g))
	cmd.AddCommand(newPlanRunCmd(g))
	cmd.AddCommand(newPlanActiveCmd(g, "pause", "Stop a plan from generating work orders", false))
	cmd.AddCommand(newPlanActiveCmd(g, "resume", "Resume a paused plan", true))
	return cmd
}

func newPlanCreateCmd(g *globals) *cobra.Command {
	var (
		opts       plan.CreateOpts
		technician string
		team       string
		first      string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a preventive plan",
		Long:  "Creates a plan that schedules the template against the asset on a cron schedule (\"0 6 * * 1\", \"@weekly\").",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.FirstDue, err = optionalTime(first); err != nil {
				return err
			}
			opts.AssignedTechnician = optionalString(technician != "", technician)
			opts.AssignedTeam = optionalString(team != "", team)
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				p, err := a.plans.Create(cmd.Context(), actor, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created plan %s, next due %s\n", p.ID, formatTime(&p.NextDue))
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Title, "title", "", "title of the generated work orders (required)")
	f.StringVar(&opts.TemplateID, "template", "", "validated template ID (required)")
	f.StringVar(&opts.AssetID, "asset", "", "asset ID (required)")
	f.StringVar(&opts.Schedule, "schedule", "", "cron expression (required)")
	f.IntVar(&opts.Priority, "priority", 2, "priority of the generated work orders")
	f.StringVar(&technician, "technician", "", "assigned technician")
	f.StringVar(&team, "team", "", "assigned team")
	f.StringVar(&first, "first", "", "first due date instead of the next schedule occurrence")
	for _, name := range []string{"title", "template", "asset", "schedule"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newPlanListCmd(g *globals) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List preventive plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				plans, err := a.plans.List(ctx, !all)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tASSET\tSCHEDULE\tNEXT DUE\tLAST RUN\tACTIVE")
				for _, p := range plans {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
						p.ID, truncate(p.Title, 40), p.AssetID, p.Schedule, formatTime(&p.NextDue), formatTime(p.LastRunAt), p.Active)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include paused plans")
	return cmd
}

func newPlanRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Create the work orders of every due plan",
		Long:  "Creates one work order per active plan that is due and advances each plan to its next occurrence. Meant to be run by an external scheduler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				created, err := a.plans.Run(cmd.Context(), actor)
				out := cmd.OutOrStdout()
				for _, wo := range created {
					fmt.Fprintf(out, "Created work order %s for plan %s\n", wo.ID, *wo.PlanID)
				}
				fmt.Fprintf(out, "%d work orders created\n", len(created))
				return err
			})
		},
	}
}

func newPlanActiveCmd(g *globals, use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <plan-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := a.plans.SetActive(cmd.Context(), actor, args[0], active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Plan %s %sd\n", args[0], use)
				return nil
			})
		},
	}
}
