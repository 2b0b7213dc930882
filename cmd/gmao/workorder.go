package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/report"
	"github.com/yazid-hub/GMOA/internal/workorder"
)

func newWorkOrderCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workorder",
		Aliases: []string{"wo"},
		Short:   "Work order commands",
	}
	cmd.AddCommand(newWorkOrderCreateCmd(g))
	cmd.AddCommand(newWorkOrderListCmd(g))
	cmd.AddCommand(newWorkOrderShowCmd(g))
	cmd.AddCommand(newWorkOrderStartCmd(g))
	cmd.AddCommand(newWorkOrderAnswerCmd(g))
	cmd.AddCommand(newWorkOrderAutosaveCmd(g))
	cmd.AddCommand(newWorkOrderMissingCmd(g))
	cmd.AddCommand(newWorkOrderCommentCmd(g))
	cmd.AddCommand(newWorkOrderFinalizeCmd(g))
	cmd.AddCommand(newWorkOrderCancelCmd(g))
	cmd.AddCommand(newWorkOrderAssignCmd(g))
	cmd.AddCommand(newWorkOrderCostsCmd(g))
	cmd.AddCommand(newWorkOrderArchiveCmd(g))
	return cmd
}

func newWorkOrderCreateCmd(g *globals) *cobra.Command {
	var (
		opts       workorder.CreateOpts
		scheduled  string
		technician string
		team       string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a work order",
		Long:  "Schedules a work order against an asset using a validated checklist template.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scheduled != "" {
				t, err := parseTime(scheduled)
				if err != nil {
					return err
				}
				opts.ScheduledStart = t
			}
			opts.AssignedTechnician = optionalString(technician != "", technician)
			opts.AssignedTeam = optionalString(team != "", team)
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				wo, err := a.orders.Create(cmd.Context(), actor, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created work order %s (%s)\n", wo.ID, wo.Status)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Title, "title", "", "title (required)")
	f.StringVar(&opts.Description, "description", "", "description")
	f.StringVar(&opts.Type, "type", models.WorkOrderOther, "type (Preventive, Corrective, Predictive, Inspection, Audit, Other)")
	f.StringVar(&opts.TemplateID, "template", "", "validated template ID (required)")
	f.StringVar(&opts.AssetID, "asset", "", "asset ID (required)")
	f.StringVar(&scheduled, "scheduled", "", "scheduled start (YYYY-MM-DD [HH:MM]), default now")
	f.IntVar(&opts.Priority, "priority", 2, "priority (1=urgent to 4=low)")
	f.StringVar(&technician, "technician", "", "assigned technician")
	f.StringVar(&team, "team", "", "assigned team")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("template")
	cmd.MarkFlagRequired("asset")
	return cmd
}

func newWorkOrderListCmd(g *globals) *cobra.Command {
	var (
		f        workorder.Filter
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if from != "" {
				if f.From, err = parseTime(from); err != nil {
					return err
				}
			}
			if to != "" {
				if f.To, err = parseTime(to); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				list, err := a.orders.List(ctx, f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No work orders found.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tASSET\tSCHEDULED\tPRI\tTECHNICIAN\tTEAM")
				for _, wo := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						wo.ID, truncate(wo.Title, 40), orderStatus(a.cfg.Workflow, wo.Status), wo.AssetID,
						formatTime(&wo.ScheduledStart), wo.Priority, orDash(wo.AssignedTechnician), orDash(wo.AssignedTeam))
				}
				return w.Flush()
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.Status, "status", "", "filter by status")
	fl.StringVar(&f.AssetID, "asset", "", "filter by asset")
	fl.StringVar(&f.Technician, "technician", "", "filter by assigned technician")
	fl.StringVar(&f.Team, "team", "", "filter by assigned team")
	fl.StringVar(&from, "from", "", "scheduled on or after")
	fl.StringVar(&to, "to", "", "scheduled before")
	fl.IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func newWorkOrderShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work order with its report and repair requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				d, err := a.orders.GetDetail(ctx, args[0])
				if err != nil {
					return err
				}
				printDetail(cmd, a, d)
				return nil
			})
		},
	}
}

func printDetail(cmd *cobra.Command, a *app, d *workorder.Detail) {
	out := cmd.OutOrStdout()
	wo := d.WorkOrder
	fmt.Fprintf(out, "ID:          %s\n", wo.ID)
	fmt.Fprintf(out, "Title:       %s\n", wo.Title)
	fmt.Fprintf(out, "Status:      %s\n", orderStatus(a.cfg.Workflow, wo.Status))
	fmt.Fprintf(out, "Type:        %s\n", wo.Type)
	fmt.Fprintf(out, "Asset:       %s\n", wo.AssetID)
	fmt.Fprintf(out, "Template:    %s\n", wo.TemplateID)
	fmt.Fprintf(out, "Priority:    %d\n", wo.Priority)
	fmt.Fprintf(out, "Technician:  %s\n", orDash(wo.AssignedTechnician))
	fmt.Fprintf(out, "Team:        %s\n", orDash(wo.AssignedTeam))
	fmt.Fprintf(out, "Scheduled:   %s\n", formatTime(&wo.ScheduledStart))
	fmt.Fprintf(out, "Started:     %s\n", formatTime(wo.ActualStart))
	fmt.Fprintf(out, "Ended:       %s\n", formatTime(wo.ActualEnd))
	fmt.Fprintf(out, "Costs:       labor %s, parts %s\n", wo.LaborCost.StringFixed(2), wo.PartsCost.StringFixed(2))
	if d.Report != nil {
		fmt.Fprintf(out, "\nReport %s (%s), %d answers\n", d.Report.ID, d.Report.Status, len(d.Report.Answers))
		for _, ans := range d.Report.Answers {
			fmt.Fprintf(out, "  #%d = %s", ans.CheckPointID, ans.Value)
			if len(ans.Media) > 0 {
				fmt.Fprintf(out, "  (%d media)", len(ans.Media))
			}
			fmt.Fprintln(out)
		}
		if d.Report.GlobalComment != "" {
			fmt.Fprintf(out, "  Comment: %s\n", d.Report.GlobalComment)
		}
	}
	if len(d.Repairs) > 0 {
		fmt.Fprintln(out, "\nRepair requests:")
		for _, r := range d.Repairs {
			blocking := ""
			if r.BlocksClosure {
				blocking = " [blocks closure]"
			}
			fmt.Fprintf(out, "  %s %s %s%s\n", r.Number, repairStatus(r.Status), r.Title, blocking)
		}
	}
}

func newWorkOrderStartCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start executing a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				rep, err := a.orders.Start(cmd.Context(), actor, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Work order %s started, report %s\n", args[0], rep.ID)
				return nil
			})
		},
	}
}

// reportOf returns the execution report of a started work order.
func reportOf(ctx context.Context, a *app, workOrderID string) (*models.ExecutionReport, error) {
	return a.reports.ForWorkOrder(ctx, workOrderID)
}

func newWorkOrderAnswerCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <id> <point-id> <value>",
		Short: "Record the answer of one check point",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pointID, err := parseID(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withActor(ctx, g, func(a *app, actor auth.Actor) error {
				rep, err := reportOf(ctx, a, args[0])
				if err != nil {
					return err
				}
				ans, err := a.reports.UpsertAnswer(ctx, actor, rep.ID, pointID, args[2])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Answer %d: #%d = %s\n", ans.ID, pointID, ans.Value)
				return nil
			})
		},
	}
}

func newWorkOrderAutosaveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "autosave <id> <point-id>=<value>...",
		Short: "Save a batch of draft answers",
		Long:  "Saves several answers at once. Invalid entries are reported while the valid ones are kept.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]report.Entry, 0, len(args)-1)
			for _, kv := range args[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid entry %q: want <point-id>=<value>", kv)
				}
				id, err := parseID(k)
				if err != nil {
					return err
				}
				entries = append(entries, report.Entry{CheckPointID: id, Value: v})
			}
			ctx := cmd.Context()
			return withActor(ctx, g, func(a *app, actor auth.Actor) error {
				if !a.cfg.Features.Autosave {
					return fmt.Errorf("autosave is disabled in %s", g.configPath)
				}
				rep, err := reportOf(ctx, a, args[0])
				if err != nil {
					return err
				}
				saved, err := a.reports.AutosaveDraft(ctx, actor, rep.ID, entries)
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d of %d answers\n", saved, len(entries))
				return err
			})
		},
	}
}

func newWorkOrderMissingCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "missing <id>",
		Short: "List the required answers still missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				rep, err := reportOf(ctx, a, args[0])
				if err != nil {
					return err
				}
				missing, err := a.reports.Missing(ctx, rep.ID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(missing) == 0 {
					fmt.Fprintln(out, "Nothing missing.")
					return nil
				}
				for _, m := range missing {
					fmt.Fprintf(out, "#%d %s (%s)\n", m.CheckPointID, m.CheckPointName, m.OperationName)
				}
				return nil
			})
		},
	}
}

func newWorkOrderCommentCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <id> <text>",
		Short: "Set the global comment of the report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, g, func(a *app, actor auth.Actor) error {
				rep, err := reportOf(ctx, a, args[0])
				if err != nil {
					return err
				}
				if err := a.reports.SetGlobalComment(ctx, actor, rep.ID, args[1]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Comment saved")
				return nil
			})
		},
	}
}

func newWorkOrderFinalizeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <id>",
		Short: "Close a work order",
		Long:  "Closes the work order and freezes its report. Refused while required answers are missing or blocking repair requests are open.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := a.orders.Finalize(cmd.Context(), actor, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Work order %s closed\n", args[0])
				return nil
			})
		},
	}
}

func newWorkOrderCancelCmd(g *globals) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := a.orders.Cancel(cmd.Context(), actor, args[0], reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Work order %s cancelled\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func newWorkOrderAssignCmd(g *globals) *cobra.Command {
	var technician, team string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Change the assigned technician or team",
		Long:  "Changes the assignees of an open work order. Pass an empty value to clear one; omitted flags are left unchanged.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tech := optionalString(cmd.Flags().Changed("technician"), technician)
			tm := optionalString(cmd.Flags().Changed("team"), team)
			if tech == nil && tm == nil {
				return fmt.Errorf("nothing to change: pass --technician and/or --team")
			}
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := a.orders.Assign(cmd.Context(), actor, args[0], tech, tm); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Work order %s reassigned\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&technician, "technician", "", "technician user ID")
	cmd.Flags().StringVar(&team, "team", "", "team ID")
	return cmd
}

func newWorkOrderCostsCmd(g *globals) *cobra.Command {
	var labor, parts string
	cmd := &cobra.Command{
		Use:   "costs <id>",
		Short: "Record labor and parts costs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseMoney("labor", labor)
			if err != nil {
				return err
			}
			p, err := parseMoney("parts", parts)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := a.orders.RecordCosts(cmd.Context(), actor, args[0], l, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Costs recorded: labor %s, parts %s\n", l.StringFixed(2), p.StringFixed(2))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&labor, "labor", "", "labor cost")
	cmd.Flags().StringVar(&parts, "parts", "", "parts cost")
	return cmd
}

func newWorkOrderArchiveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "archive-report <id>",
		Short: "Archive the finalized report of a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, g, func(a *app, actor auth.Actor) error {
				rep, err := reportOf(ctx, a, args[0])
				if err != nil {
					return err
				}
				if err := a.reports.Archive(ctx, actor, rep.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report %s archived\n", rep.ID)
				return nil
			})
		},
	}
}
