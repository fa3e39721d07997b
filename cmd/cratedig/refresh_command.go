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

func newRefreshLikesCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh-likes",
		Short: "Re-run catalog lookups for unresolved liked tracks",
		Long: `Re-run catalog lookups for every liked track still unresolved on some
provider. With --input, a JSON array of track observations (as exported by
the listening client) is ingested first; "-" reads from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			observations, err := readObservations(cmd, inputPath)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RefreshLikes(observations, force)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				result := resp.Result
				if result.Observed > 0 {
					fmt.Fprintf(out, "Ingested %d observations\n", result.Observed)
				}
				if result.Scheduled == 0 {
					fmt.Fprintln(out, "All liked tracks are settled; nothing scheduled.")
					return nil
				}
				fmt.Fprintf(out, "Scheduled lookups for %d tracks (job %s)\n", result.Scheduled, result.JobID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "JSON file of track observations to ingest first (- for stdin)")
	cmd.Flags().BoolVar(&force, "force", false, "Treat every observation as changed")
	return cmd
}

func readObservations(cmd *cobra.Command, path string) ([]activity.TrackObservation, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}

	var reader io.Reader
	if trimmed == "-" {
		reader = cmd.InOrStdin()
	} else {
		file, err := os.Open(trimmed)
		if err != nil {
			return nil, fmt.Errorf("open observations file: %w", err)
		}
		defer file.Close()
		reader = file
	}

	var observations []activity.TrackObservation
	if err := json.NewDecoder(reader).Decode(&observations); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	return observations, nil
}
