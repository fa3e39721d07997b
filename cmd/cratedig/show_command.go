package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"cratedig/internal/ipc"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <track-id>",
		Short: "Show match state for one track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TrackStatus(args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Track)
				}

				out := cmd.OutOrStdout()
				track := resp.Track
				fmt.Fprintf(out, "Track:    %s\n", track.TrackID)
				fmt.Fprintf(out, "Title:    %s\n", track.Title)
				fmt.Fprintf(out, "Artist:   %s\n", track.Artist)
				if track.Album != "" {
					fmt.Fprintf(out, "Album:    %s\n", track.Album)
				}
				fmt.Fprintf(out, "Liked:    %s\n", yesNo(track.Liked))
				fmt.Fprintf(out, "Local:    %s\n", yesNo(track.LocalAvailable))
				if track.Conflicted {
					fmt.Fprintln(out, "Conflict: providers disagree on the matched release")
				}

				providers := make([]string, 0, len(track.Providers))
				for provider := range track.Providers {
					providers = append(providers, provider)
				}
				sort.Strings(providers)
				for _, provider := range providers {
					view := track.Providers[provider]
					fmt.Fprintf(out, "\n[%s]\n", provider)
					fmt.Fprintf(out, "  status:     %s\n", view.Status)
					if view.ReleaseID != "" {
						fmt.Fprintf(out, "  release:    %s\n", view.ReleaseID)
					}
					if view.Confidence > 0 {
						fmt.Fprintf(out, "  confidence: %.1f\n", view.Confidence)
					}
					if view.Message != "" {
						fmt.Fprintf(out, "  message:    %s\n", view.Message)
					}
					if view.CheckedAt != "" {
						fmt.Fprintf(out, "  checked:    %s\n", view.CheckedAt)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}
