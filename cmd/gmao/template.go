package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/checklist"
)

func newTemplateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"tpl"},
		Short:   "Checklist template commands",
	}
	cmd.AddCommand(newTemplateCreateCmd(g))
	cmd.AddCommand(newTemplateListCmd(g))
	cmd.AddCommand(newTemplateShowCmd(g))
	cmd.AddCommand(templateAction(g, "validate", "Validate a draft template", func(cmd *cobra.Command, a *app, actor auth.Actor, id string) error {
		return a.tpls.Validate(cmd.Context(), actor, id)
	}))
	cmd.AddCommand(templateAction(g, "archive", "Archive a validated template", func(cmd *cobra.Command, a *app, actor auth.Actor, id string) error {
		return a.tpls.Archive(cmd.Context(), actor, id)
	}))
	cmd.AddCommand(templateAction(g, "delete", "Delete a template no work order uses", func(cmd *cobra.Command, a *app, actor auth.Actor, id string) error {
		return a.tpls.Delete(cmd.Context(), actor, id)
	}))
	cmd.AddCommand(newOperationCmd(g))
	cmd.AddCommand(newPointCmd(g))
	return cmd
}

func templateAction(g *globals, use, short string, fn func(*cobra.Command, *app, auth.Actor, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <template-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := fn(cmd, a, actor, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Template %s: %s done\n", args[0], use)
				return nil
			})
		},
	}
}

func newTemplateCreateCmd(g *globals) *cobra.Command {
	var opts checklist.CreateOpts
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				tpl, err := a.tpls.Create(cmd.Context(), actor, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created template %s\n", tpl.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "template name (required)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.EstimatedHours, "hours", 1, "estimated duration in hours")
	cmd.Flags().IntVar(&opts.RequiredTechnicians, "technicians", 1, "number of technicians required")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newTemplateListCmd(g *globals) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				tpls, err := a.tpls.List(ctx, status)
				if err != nil {
					return err
				}
				if len(tpls) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No templates found.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSTATUS\tHOURS")
				for _, t := range tpls {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", t.ID, truncate(t.Name, 40), t.Status, t.EstimatedHours)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (Draft, Validated, Archived)")
	return cmd
}

func newTemplateShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <template-id>",
		Short: "Show a template with its operations and check points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				tpl, err := a.tpls.Get(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:          %s\n", tpl.ID)
				fmt.Fprintf(out, "Name:        %s\n", tpl.Name)
				fmt.Fprintf(out, "Status:      %s\n", tpl.Status)
				if tpl.Description != "" {
					fmt.Fprintf(out, "Description: %s\n", tpl.Description)
				}
				for _, op := range tpl.Operations {
					fmt.Fprintf(out, "\n%d. %s  [op %d]\n", op.Order, op.Name, op.ID)
					for _, p := range op.CheckPoints {
						var flags []string
						if p.Required {
							flags = append(flags, "required")
						}
						if p.DependsOnPointID != nil {
							flags = append(flags, fmt.Sprintf("if #%d %s", *p.DependsOnPointID, p.DisplayCondition))
						}
						if len(p.Options) > 0 {
							flags = append(flags, strings.Join(p.Options, "/"))
						}
						if p.CanRequestRepair {
							flags = append(flags, "repair")
						}
						fmt.Fprintf(out, "   %d.%d #%d %s (%s) %s\n", op.Order, p.Order, p.ID, p.Label, p.FieldType, strings.Join(flags, ", "))
					}
				}
				return nil
			})
		},
	}
}

func newOperationCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operation",
		Aliases: []string{"op"},
		Short:   "Edit the operations of a draft template",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <template-id> <name>",
		Short: "Append an operation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				op, err := a.tpls.AddOperation(cmd.Context(), actor, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added operation %d at position %d\n", op.ID, op.Order)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <operation-id> <name>",
		Short: "Rename an operation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := a.tpls.RenameOperation(cmd.Context(), actor, id, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed operation %d\n", id)
				return nil
			})
		},
	})
	cmd.AddCommand(newRemoveCmd(g, "operation", func(cmd *cobra.Command, a *app, actor auth.Actor, id uint, force bool) error {
		return a.tpls.RemoveOperation(cmd.Context(), actor, id, force)
	}))
	cmd.AddCommand(&cobra.Command{
		Use:   "reorder <template-id> <operation-id>...",
		Short: "Set the order of every operation of a template",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := a.tpls.ReorderOperations(cmd.Context(), actor, args[0], ids); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Operations reordered")
				return nil
			})
		},
	})
	return cmd
}

func newPointCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "point",
		Aliases: []string{"cp"},
		Short:   "Edit the check points of a draft template",
	}
	cmd.AddCommand(newPointEditCmd(g, "add <operation-id>", "Append a check point to an operation", func(cmd *cobra.Command, a *app, actor auth.Actor, id uint, opts checklist.CheckPointOpts) (uint, error) {
		p, err := a.tpls.AddCheckPoint(cmd.Context(), actor, id, opts)
		if err != nil {
			return 0, err
		}
		return p.ID, nil
	}))
	cmd.AddCommand(newPointEditCmd(g, "update <point-id>", "Replace the fields of a check point", func(cmd *cobra.Command, a *app, actor auth.Actor, id uint, opts checklist.CheckPointOpts) (uint, error) {
		p, err := a.tpls.UpdateCheckPoint(cmd.Context(), actor, id, opts)
		if err != nil {
			return 0, err
		}
		return p.ID, nil
	}))
	cmd.AddCommand(newRemoveCmd(g, "point", func(cmd *cobra.Command, a *app, actor auth.Actor, id uint, force bool) error {
		return a.tpls.RemoveCheckPoint(cmd.Context(), actor, id, force)
	}))
	cmd.AddCommand(&cobra.Command{
		Use:   "reorder <operation-id> <point-id>...",
		Short: "Set the order of every check point of an operation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := a.tpls.ReorderCheckPoints(cmd.Context(), actor, ids[0], ids[1:]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Check points reordered")
				return nil
			})
		},
	})
	return cmd
}

func newPointEditCmd(g *globals, use, short string, fn func(*cobra.Command, *app, auth.Actor, uint, checklist.CheckPointOpts) (uint, error)) *cobra.Command {
	var (
		opts      checklist.CheckPointOpts
		options   string
		fileTypes string
		dependsOn uint
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts.Options = checklist.ParseList(options)
			opts.AllowedFileTypes = checklist.ParseFileTypes(fileTypes)
			if dependsOn != 0 {
				opts.DependsOnPointID = &dependsOn
			}
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				pointID, err := fn(cmd, a, actor, id, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Check point %d saved\n", pointID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Label, "label", "", "label (required)")
	f.StringVar(&opts.Help, "help-text", "", "help shown to the technician")
	f.StringVar(&opts.FieldType, "type", "Text", "field type (Text, Number, Boolean, Select, Textarea, Date, Time, DateTime)")
	f.StringVar(&options, "options", "", "Select options separated by ';'")
	f.BoolVar(&opts.Required, "required", false, "an answer is required to finalize")
	f.UintVar(&dependsOn, "depends-on", 0, "ID of the parent check point")
	f.StringVar(&opts.DisplayCondition, "condition", "", "display condition on the parent value (=X, !=X, >N, A;B)")
	f.BoolVar(&opts.CanPhoto, "photo", false, "allow photos")
	f.BoolVar(&opts.CanAudio, "audio", false, "allow audio recordings")
	f.BoolVar(&opts.CanVideo, "video", false, "allow videos")
	f.BoolVar(&opts.CanFiles, "files", false, "allow documents")
	f.StringVar(&fileTypes, "file-types", "", "allowed extensions separated by ';' or ','")
	f.IntVar(&opts.MaxFileSizeMB, "max-mb", 10, "maximum attachment size in MB")
	f.BoolVar(&opts.CanRequestRepair, "repair", false, "answers may raise repair requests")
	cmd.MarkFlagRequired("label")
	return cmd
}

func newRemoveCmd(g *globals, what string, fn func(*cobra.Command, *app, auth.Actor, uint, bool) error) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "remove <" + what + "-id>",
		Short: "Remove a " + what,
		Long: "Removes a " + what + " from a draft template. Once answers exist the removal is refused unless " +
			"--force is given; forced removal archives the answers first and needs forced deletion enabled in the config.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := fn(cmd, a, actor, id, force); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s %d\n", what, id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "archive existing answers and delete anyway")
	return cmd
}

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(n), nil
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))
	for _, s := range args {
		id, err := parseID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
