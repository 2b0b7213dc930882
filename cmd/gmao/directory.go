package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/directory"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
)

// requireManager guards registry changes. An empty user table lets the
// first account be created without an acting user.
func requireManager(ctx context.Context, a *app, action string) error {
	var count int64
	if err := a.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		return nil
	}
	actor, err := a.actor(ctx)
	if err != nil {
		return err
	}
	if !actor.Role.IsManagerial() {
		return &gmaoerr.PermissionDeniedError{ActorID: actor.ID, Action: action, Reason: "requires Manager or Admin"}
	}
	return nil
}

func newUserCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User registry commands",
	}
	cmd.AddCommand(newUserCreateCmd(g))
	cmd.AddCommand(newUserListCmd(g))
	cmd.AddCommand(newUserRoleCmd(g))
	cmd.AddCommand(newUserActiveCmd(g, "deactivate", false))
	cmd.AddCommand(newUserActiveCmd(g, "activate", true))
	return cmd
}

func newUserCreateCmd(g *globals) *cobra.Command {
	var opts directory.CreateUserOpts
	var role string
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Register a user",
		Long:  "Registers an active user. The first user can be created without --as.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			opts.Role = r
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				if err := requireManager(ctx, a, "create user"); err != nil {
					return err
				}
				u, err := a.users.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.ID, u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleTechnician), "role (Admin, Manager, Technician, Operator, Supervisor)")
	return cmd
}

func newUserListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				users, err := a.users.ListUsers(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tROLE\tACTIVE\tEMAIL")
				for _, u := range users {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", u.ID, u.Name, u.Role, u.Active, u.Email)
				}
				return w.Flush()
			})
		},
	}
}

func newUserRoleCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "role <id> <role>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := auth.ParseRole(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				if err := requireManager(ctx, a, "change role"); err != nil {
					return err
				}
				if err := a.users.SetRole(ctx, args[0], role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %s is now %s\n", args[0], role)
				return nil
			})
		},
	}
}

func newUserActiveCmd(g *globals, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("Mark a user %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				if err := requireManager(ctx, a, use+" user"); err != nil {
					return err
				}
				if err := a.users.SetActive(ctx, args[0], active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %s %sd\n", args[0], use)
				return nil
			})
		},
	}
}

func newTeamCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Technician team commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <id> <name>",
		Short: "Create a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				if err := requireManager(ctx, a, "create team"); err != nil {
					return err
				}
				if _, err := a.users.CreateTeam(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created team %s\n", args[0])
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add <team> <user>",
		Short: "Add a member to a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				if err := requireManager(ctx, a, "add team member"); err != nil {
					return err
				}
				if err := a.users.AddTeamMember(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", args[1], args[0])
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <team> <user>",
		Short: "Remove a member from a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				if err := requireManager(ctx, a, "remove team member"); err != nil {
					return err
				}
				if err := a.users.RemoveTeamMember(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[1], args[0])
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "members <team>",
		Short: "List team members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				members, err := a.users.TeamMembers(ctx, args[0])
				if err != nil {
					return err
				}
				for _, m := range members {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return nil
			})
		},
	})
	return cmd
}

func newAssetCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Asset catalog commands",
	}

	var opts directory.CreateAssetOpts
	create := &cobra.Command{
		Use:   "create <id>",
		Short: "Register an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				if err := requireManager(ctx, a, "create asset"); err != nil {
					return err
				}
				asset, err := a.assets.Create(ctx, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created asset %s (%s)\n", asset.ID, asset.Name)
				return nil
			})
		},
	}
	create.Flags().StringVar(&opts.Name, "name", "", "asset name (required)")
	create.Flags().StringVar(&opts.Category, "category", "", "category")
	create.Flags().StringVar(&opts.Location, "location", "", "location")
	create.MarkFlagRequired("name")
	cmd.AddCommand(create)

	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				assets, err := a.assets.List(ctx, category)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tLOCATION\tSTATUS")
				for _, as := range assets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", as.ID, truncate(as.Name, 40), as.Category, as.Location, as.Status)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.AddCommand(list)
	return cmd
}
