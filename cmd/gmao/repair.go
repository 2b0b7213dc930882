package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/models"
	"github.com/yazid-hub/GMOA/internal/repair"
)

func newRepairCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "repair",
		Aliases: []string{"dr"},
		Short:   "Repair request commands",
		Long:    "Repair requests are raised from check point answers. Requests are addressed by ID or by number (DR-YYYY-NNN).",
	}
	cmd.AddCommand(newRepairCreateCmd(g))
	cmd.AddCommand(newRepairListCmd(g))
	cmd.AddCommand(newRepairOverdueCmd(g))
	cmd.AddCommand(newRepairShowCmd(g))

	var comment string
	validate := repairAction(g, "validate", "Validate a pending request", func(ctx context.Context, a *app, actor auth.Actor, id string, _ []string) (*models.RepairRequest, error) {
		return a.repairs.Validate(ctx, actor, id, comment)
	})
	validate.Flags().StringVar(&comment, "comment", "", "manager comment")
	cmd.AddCommand(validate)

	cmd.AddCommand(repairAction(g, "reject <reason>", "Reject a pending request", func(ctx context.Context, a *app, actor auth.Actor, id string, rest []string) (*models.RepairRequest, error) {
		return a.repairs.Reject(ctx, actor, id, strings.Join(rest, " "))
	}))
	cmd.AddCommand(repairAction(g, "assign <user>", "Assign a request to a user", func(ctx context.Context, a *app, actor auth.Actor, id string, rest []string) (*models.RepairRequest, error) {
		return a.repairs.Assign(ctx, actor, id, rest[0])
	}))
	cmd.AddCommand(repairAction(g, "start", "Start work on a validated request", func(ctx context.Context, a *app, actor auth.Actor, id string, _ []string) (*models.RepairRequest, error) {
		return a.repairs.Start(ctx, actor, id)
	}))

	var cost, resolution string
	complete := repairAction(g, "complete", "Mark a request done", func(ctx context.Context, a *app, actor auth.Actor, id string, _ []string) (*models.RepairRequest, error) {
		c, err := parseMoney("cost", cost)
		if err != nil {
			return nil, err
		}
		return a.repairs.Complete(ctx, actor, id, repair.CompleteOpts{ActualCost: c, Resolution: resolution})
	})
	complete.Flags().StringVar(&cost, "cost", "", "actual cost")
	complete.Flags().StringVar(&resolution, "resolution", "", "what was done")
	cmd.AddCommand(complete)

	cmd.AddCommand(repairAction(g, "defer <reason>", "Put a request on hold", func(ctx context.Context, a *app, actor auth.Actor, id string, rest []string) (*models.RepairRequest, error) {
		return a.repairs.Defer(ctx, actor, id, strings.Join(rest, " "))
	}))
	cmd.AddCommand(repairAction(g, "resume", "Return a deferred request to pending", func(ctx context.Context, a *app, actor auth.Actor, id string, _ []string) (*models.RepairRequest, error) {
		return a.repairs.Resume(ctx, actor, id)
	}))
	return cmd
}

// resolveRepair accepts either a request ID or its DR number.
func resolveRepair(ctx context.Context, a *app, ref string) (*models.RepairRequest, error) {
	if strings.HasPrefix(strings.ToUpper(ref), "DR-") {
		return a.repairs.GetByNumber(ctx, strings.ToUpper(ref))
	}
	return a.repairs.Get(ctx, ref)
}

// repairAction builds "<verb> <ref> [args]" where use names the extra
// positional arguments after the verb.
func repairAction(g *globals, use, short string, fn func(context.Context, *app, auth.Actor, string, []string) (*models.RepairRequest, error)) *cobra.Command {
	verb, extra, _ := strings.Cut(use, " ")
	args := cobra.ExactArgs(1)
	if extra != "" {
		args = cobra.MinimumNArgs(2)
	}
	return &cobra.Command{
		Use:   strings.TrimSpace(verb + " <ref> " + extra),
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			ctx := cmd.Context()
			return withActor(ctx, g, func(a *app, actor auth.Actor) error {
				r, err := resolveRepair(ctx, a, argv[0])
				if err != nil {
					return err
				}
				r, err = fn(ctx, a, actor, r.ID, argv[1:])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", r.Number, repairStatus(r.Status))
				return nil
			})
		},
	}
}

func newRepairCreateCmd(g *globals) *cobra.Command {
	var (
		opts    repair.CreateOpts
		noBlock bool
		cost    string
		due     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Raise a repair request from a check point",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.EstimatedCost, err = parseMoney("cost", cost); err != nil {
				return err
			}
			if opts.DueDate, err = optionalTime(due); err != nil {
				return err
			}
			blocks := !noBlock
			opts.BlocksClosure = &blocks
			ctx := cmd.Context()
			return withActor(ctx, g, func(a *app, actor auth.Actor) error {
				r, err := a.repairs.Create(ctx, actor, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created repair request %s (%s)\n", r.Number, r.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.WorkOrderID, "workorder", "", "work order ID (required)")
	f.UintVar(&opts.CheckPointID, "point", 0, "check point ID (required)")
	f.StringVar(&opts.Title, "title", "", "title (required)")
	f.StringVar(&opts.Description, "description", "", "description")
	f.IntVar(&opts.Priority, "priority", 2, "priority (1=urgent to 4=low)")
	f.BoolVar(&noBlock, "no-block", false, "do not block closing the work order")
	f.StringVar(&cost, "cost", "", "estimated cost")
	f.StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	f.StringVar(&opts.Comment, "comment", "", "technician comment")
	cmd.MarkFlagRequired("workorder")
	cmd.MarkFlagRequired("point")
	cmd.MarkFlagRequired("title")
	return cmd
}

func printRepairs(cmd *cobra.Command, list []models.RepairRequest, now time.Time) error {
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No repair requests found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tTITLE\tSTATUS\tWORK ORDER\tPRI\tASSIGNED\tDUE\tBLOCKS")
	for _, r := range list {
		due := formatTime(r.DueDate)
		if repair.IsOverdue(&r, now) {
			due += " !"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%t\n",
			r.Number, truncate(r.Title, 40), repairStatus(r.Status), r.WorkOrderID, r.Priority,
			orDash(r.AssignedTo), due, r.BlocksClosure)
	}
	return w.Flush()
}

func newRepairListCmd(g *globals) *cobra.Command {
	var f repair.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List repair requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				list, err := a.repairs.List(ctx, f)
				if err != nil {
					return err
				}
				return printRepairs(cmd, list, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&f.WorkOrderID, "workorder", "", "filter by work order")
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&f.AssignedTo, "assigned", "", "filter by assignee")
	return cmd
}

func newRepairOverdueCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open requests past their due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				list, err := a.repairs.ListOverdue(ctx)
				if err != nil {
					return err
				}
				return printRepairs(cmd, list, time.Now())
			})
		},
	}
}

func newRepairShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ref>",
		Short: "Show a repair request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				r, err := resolveRepair(ctx, a, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Number:      %s\n", r.Number)
				fmt.Fprintf(out, "ID:          %s\n", r.ID)
				fmt.Fprintf(out, "Title:       %s\n", r.Title)
				fmt.Fprintf(out, "Status:      %s\n", repairStatus(r.Status))
				fmt.Fprintf(out, "Work order:  %s (point #%d)\n", r.WorkOrderID, r.CheckPointID)
				fmt.Fprintf(out, "Priority:    %d\n", r.Priority)
				fmt.Fprintf(out, "Blocks:      %t\n", r.BlocksClosure)
				fmt.Fprintf(out, "Created by:  %s\n", r.CreatedBy)
				fmt.Fprintf(out, "Assigned:    %s\n", orDash(r.AssignedTo))
				fmt.Fprintf(out, "Due:         %s\n", formatTime(r.DueDate))
				fmt.Fprintf(out, "Estimated:   %s\n", r.EstimatedCost.StringFixed(2))
				if r.Status == models.RepairDone {
					fmt.Fprintf(out, "Actual:      %s\n", r.ActualCost.StringFixed(2))
				}
				if d, ok := repair.Duration(r); ok {
					fmt.Fprintf(out, "Duration:    %s\n", d.Round(time.Minute))
				}
				notes := []struct{ label, text string }{
					{"Description", r.Description}, {"Technician", r.TechnicianComment},
					{"Manager", r.ManagerComment}, {"Resolution", r.ResolutionNote}, {"Deferred", r.DeferReason},
				}
				for _, n := range notes {
					if n.text != "" {
						fmt.Fprintf(out, "%-12s %s\n", n.label+":", n.text)
					}
				}
				return nil
			})
		},
	}
}
