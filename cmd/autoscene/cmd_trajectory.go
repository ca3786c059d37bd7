package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/autoscene/autoscene/internal/trajectory"
)

func newTrajectoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trajectory <file.kbs>",
		Short: "Follow logical identities through the scenes",
		Long: `List the centroid, speed and yaw of each logical identity in every scene it
is registered in. With --output, the samples are written as an Apache Arrow
IPC file (one row per identity and scene) instead.

Examples:
  autoscene trajectory crossing.kbs
  autoscene trajectory crossing.kbs --id ego --json
  autoscene trajectory crossing.kbs -o tracks.arrow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			only, _ := cmd.Flags().GetStringSlice("id")
			output, _ := cmd.Flags().GetString("output")

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			sc, err := e.load(ctx, args, false)
			if err != nil {
				return err
			}
			defer sc.Close()

			tracks, err := trajectory.Build(ctx, sc)
			if err != nil {
				return err
			}
			if len(only) > 0 {
				tracks, err = selectTracks(tracks, only)
				if err != nil {
					return err
				}
			}

			if output != "" {
				if err := trajectory.WriteFile(output, tracks); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d tracks written to %s\n", len(tracks), output)
				return nil
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tracks)
			}

			data := pterm.TableData{{"Logical ID", "Scene", "Time", "Entity", "X", "Y", "Speed", "Yaw"}}
			for _, tr := range tracks {
				for _, s := range tr.Samples {
					row := []string{tr.LogicalID, strconv.Itoa(s.Scene), formatFloat(s.Timestamp), s.EntityID, "-", "-", "-", "-"}
					if s.Placed {
						row[4], row[5] = formatFloat(s.Centroid[0]), formatFloat(s.Centroid[1])
					}
					if s.HasVelocity {
						row[6], row[7] = formatFloat(s.Speed), formatFloat(s.Yaw)
					}
					data = append(data, row)
				}
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return fmt.Errorf("failed to render trajectory table: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringSlice("id", nil, "Only these logical identities (repeatable)")
	cmd.Flags().StringP("output", "o", "", "Write an Arrow IPC file instead of printing")
	return cmd
}

func selectTracks(tracks []trajectory.Track, ids []string) ([]trajectory.Track, error) {
	byID := make(map[string]trajectory.Track, len(tracks))
	for _, tr := range tracks {
		byID[tr.LogicalID] = tr
	}
	selected := make([]trajectory.Track, 0, len(ids))
	for _, id := range ids {
		tr, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("logical identity %q is not registered", id)
		}
		selected = append(selected, tr)
	}
	return selected, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
