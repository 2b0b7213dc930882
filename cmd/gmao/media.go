package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/media"
	"github.com/yazid-hub/GMOA/internal/models"
)

var kindByExtension = map[string]string{
	"jpg": models.MediaPhoto, "jpeg": models.MediaPhoto, "png": models.MediaPhoto, "gif": models.MediaPhoto,
	"webp": models.MediaPhoto, "heic": models.MediaPhoto,
	"mp3": models.MediaAudio, "wav": models.MediaAudio, "ogg": models.MediaAudio, "m4a": models.MediaAudio,
	"mp4": models.MediaVideo, "mov": models.MediaVideo, "avi": models.MediaVideo, "mkv": models.MediaVideo,
	"webm": models.MediaVideo,
}

// guessKind maps a file extension to a media kind, defaulting to Document.
func guessKind(name string) string {
	if k, ok := kindByExtension[media.Extension(name)]; ok {
		return k
	}
	return models.MediaDocument
}

// answerFor finds the answer of a check point in a work order's report.
func answerFor(ctx context.Context, a *app, workOrderID string, pointID uint) (*models.Answer, error) {
	rep, err := a.reports.ForWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	full, err := a.reports.Get(ctx, rep.ID)
	if err != nil {
		return nil, err
	}
	for i := range full.Answers {
		if full.Answers[i].CheckPointID == pointID {
			return &full.Answers[i], nil
		}
	}
	return nil, gmaoerr.NotFound("answer", fmt.Sprintf("%s/#%d", workOrderID, pointID))
}

func newMediaCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Evidence attached to answers",
	}
	cmd.AddCommand(newMediaAttachCmd(g))
	cmd.AddCommand(newMediaListCmd(g))
	cmd.AddCommand(newMediaGetCmd(g))
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <media-id>",
		Short: "Remove an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withActor(cmd.Context(), g, func(a *app, actor auth.Actor) error {
				if err := a.media.Remove(cmd.Context(), actor, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed media %d\n", id)
				return nil
			})
		},
	})
	return cmd
}

func newMediaAttachCmd(g *globals) *cobra.Command {
	var (
		workOrderID string
		pointID     uint
		kind        string
		caption     string
	)
	cmd := &cobra.Command{
		Use:   "attach <file>",
		Short: "Attach a file to the answer of a check point",
		Long:  "Attaches a photo, audio, video or document to an answered check point. The kind is guessed from the extension unless --kind is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			up := media.Upload{
				Kind:    kind,
				Name:    filepath.Base(args[0]),
				Caption: caption,
				Size:    info.Size(),
				Body:    f,
			}
			if up.Kind == "" {
				up.Kind = guessKind(up.Name)
			}
			ctx := cmd.Context()
			return withActor(ctx, g, func(a *app, actor auth.Actor) error {
				ans, err := answerFor(ctx, a, workOrderID, pointID)
				if err != nil {
					return err
				}
				att, err := a.media.Attach(ctx, actor, ans.ID, up)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Attached %s %s as media %d (%d bytes, sha256 %s)\n",
					att.Kind, att.OriginalName, att.ID, att.SizeBytes, att.SHA256)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&workOrderID, "workorder", "", "work order ID (required)")
	cmd.Flags().UintVar(&pointID, "point", 0, "check point ID (required)")
	cmd.Flags().StringVar(&kind, "kind", "", "Photo, Audio, Video or Document")
	cmd.Flags().StringVar(&caption, "caption", "", "caption")
	cmd.MarkFlagRequired("workorder")
	cmd.MarkFlagRequired("point")
	return cmd
}

func newMediaListCmd(g *globals) *cobra.Command {
	var (
		workOrderID string
		pointID     uint
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the attachments of an answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				ans, err := answerFor(ctx, a, workOrderID, pointID)
				if err != nil {
					return err
				}
				list, err := a.media.List(ctx, ans.ID)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKIND\tNAME\tBYTES\tBY\tAT")
				for _, m := range list {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", m.ID, m.Kind, m.OriginalName, m.SizeBytes, m.UploadedBy, formatTime(&m.UploadedAt))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&workOrderID, "workorder", "", "work order ID (required)")
	cmd.Flags().UintVar(&pointID, "point", 0, "check point ID (required)")
	cmd.MarkFlagRequired("workorder")
	cmd.MarkFlagRequired("point")
	return cmd
}

func newMediaGetCmd(g *globals) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <media-id>",
		Short: "Copy an attachment to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withApp(ctx, g, func(a *app) error {
				att, body, err := a.media.Open(ctx, id)
				if err != nil {
					return err
				}
				defer body.Close()
				if output == "" {
					output = att.OriginalName
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				n, err := io.Copy(f, body)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", n, output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default: original name)")
	return cmd
}
