package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cratedig/internal/activity"
	"cratedig/internal/ipc"
)

func newObserveCommand(ctx *commandContext) *cobra.Command {
	observeCmd := &cobra.Command{
		Use:   "observe",
		Short: "Ingest raw observations from the listening client",
	}
	observeCmd.AddCommand(newObserveTrackCommand(ctx))
	observeCmd.AddCommand(newObservePlaylistCommand(ctx))
	observeCmd.AddCommand(newObserveAssetCommand(ctx))
	observeCmd.AddCommand(newObserveExternalCommand(ctx))
	return observeCmd
}

func newObserveTrackCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Ingest one track observation from JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var obs activity.TrackObservation
			if err := decodeInput(cmd, inputPath, &obs); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ObserveTrack(obs, force)
				if err != nil {
					return err
				}
				reportObservation(cmd, resp.Result.ID, resp.Result.Changed, resp.Result.JobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "-", "JSON observation file (- for stdin)")
	cmd.Flags().BoolVar(&force, "force", false, "Treat the observation as changed")
	return cmd
}

func newObservePlaylistCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "playlist",
		Short: "Ingest one playlist observation from JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var obs activity.PlaylistObservation
			if err := decodeInput(cmd, inputPath, &obs); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ObservePlaylist(obs, force)
				if err != nil {
					return err
				}
				reportObservation(cmd, resp.Result.ID, resp.Result.Changed, resp.Result.JobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "-", "JSON observation file (- for stdin)")
	cmd.Flags().BoolVar(&force, "force", false, "Treat the observation as changed")
	return cmd
}

func newObserveAssetCommand(ctx *commandContext) *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Record the local file backing a track from JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var obs activity.LocalAssetObservation
			if err := decodeInput(cmd, inputPath, &obs); err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.RecordLocalAsset(obs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded local asset for %s\n", obs.TrackID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "-", "JSON observation file (- for stdin)")
	return cmd
}

func newObserveExternalCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "external <external-id> <track-id>",
		Short: "Link a track to an external DJ library entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			obs := activity.ExternalMembershipObservation{ExternalID: args[0], TrackID: args[1]}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.RecordExternalMembership(obs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to %s\n", args[1], args[0])
				return nil
			})
		},
	}
}

func decodeInput(cmd *cobra.Command, path string, v any) error {
	trimmed := strings.TrimSpace(path)
	var reader io.Reader
	if trimmed == "" || trimmed == "-" {
		reader = cmd.InOrStdin()
	} else {
		file, err := os.Open(trimmed)
		if err != nil {
			return fmt.Errorf("open observation file: %w", err)
		}
		defer file.Close()
		reader = file
	}
	if err := json.NewDecoder(reader).Decode(v); err != nil {
		return fmt.Errorf("decode observation: %w", err)
	}
	return nil
}

func reportObservation(cmd *cobra.Command, id string, changed bool, jobID string) {
	out := cmd.OutOrStdout()
	if !changed {
		fmt.Fprintf(out, "%s unchanged\n", id)
		return
	}
	if jobID != "" {
		fmt.Fprintf(out, "%s updated; lookups scheduled (job %s)\n", id, jobID)
		return
	}
	fmt.Fprintf(out, "%s updated\n", id)
}
