package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/notify"
)

// inbox returns the outbox sink, or a reader over the same table when the
// sink is not enabled for delivery.
func (a *app) inbox() *notify.Outbox {
	if a.outbox != nil {
		return a.outbox
	}
	return notify.NewOutbox(a.db, a.users)
}

func newInboxCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Unread notifications of the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, g, func(a *app, actor auth.Actor) error {
				rows, err := a.inbox().Inbox(ctx, actor.ID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No unread notifications.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tAT\tEVENT\tTITLE")
				for _, n := range rows {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", n.ID, formatTime(&n.CreatedAt), n.EventType, n.Title)
				}
				return w.Flush()
			})
		},
	}

	var all bool
	ack := &cobra.Command{
		Use:   "ack [notification-id]",
		Short: "Mark notifications as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass either a notification ID or --all")
			}
			ctx := cmd.Context()
			return withActor(ctx, g, func(a *app, actor auth.Actor) error {
				if all {
					n, err := a.inbox().AcknowledgeAll(ctx, actor.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Marked %d notifications read\n", n)
					return nil
				}
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := a.inbox().Acknowledge(ctx, actor.ID, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Notification %d read\n", id)
				return nil
			})
		},
	}
	ack.Flags().BoolVar(&all, "all", false, "mark every notification read")
	cmd.AddCommand(ack)
	return cmd
}
