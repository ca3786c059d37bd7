package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/autoscene/autoscene/internal/kbs"
	"github.com/autoscene/autoscene/internal/scenario"
)

type sceneInfo struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Label     string  `json:"label,omitempty"`
	Entities  int     `json:"entities"`
	Placed    int     `json:"placed"`
}

type identityInfo struct {
	LogicalID string         `json:"logical_id"`
	Entities  map[int]string `json:"entities"`
}

type inspectReport struct {
	Name       string         `json:"name"`
	Header     *kbs.Header    `json:"header,omitempty"`
	Scenes     []sceneInfo    `json:"scenes"`
	Identities []identityInfo `json:"identities"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file.kbs> | --abox <scene.nt>...",
		Short: "Summarize the scenes and identities of a scenario",
		Long: `Print the container header, a table of scenes with entity counts and the
per-scene entities bound to each logical identity.

Examples:
  autoscene inspect crossing.kbs
  autoscene inspect --abox scene0.nt scene1.nt
  autoscene inspect crossing.kbs --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			aboxes, _ := cmd.Flags().GetBool("abox")

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			sc, err := e.load(ctx, args, aboxes)
			if err != nil {
				return err
			}
			defer sc.Close()

			report, err := buildReport(ctx, sc)
			if err != nil {
				return err
			}
			if !aboxes {
				report.Header, err = kbs.ReadHeader(args[0])
				if err != nil {
					return err
				}
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().Bool("abox", false, "Arguments are single-scene ABox files instead of one container")
	return cmd
}

func buildReport(ctx context.Context, sc *scenario.Scenario) (*inspectReport, error) {
	r := &inspectReport{
		Name:       sc.Name(),
		Scenes:     make([]sceneInfo, 0, sc.Len()),
		Identities: []identityInfo{},
	}
	for i, s := range sc.All() {
		entities, err := s.Entities(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to list entities of scene %d: %w", i, err)
		}
		info := sceneInfo{Index: i, Timestamp: s.Timestamp(), Label: s.Label(), Entities: len(entities)}
		for _, ent := range entities {
			placed, err := ent.HasGeometry(ctx)
			if err != nil {
				return nil, err
			}
			if placed {
				info.Placed++
			}
		}
		r.Scenes = append(r.Scenes, info)
	}

	ids := sc.Identities()
	for _, logical := range ids.LogicalIDs() {
		info := identityInfo{LogicalID: logical, Entities: make(map[int]string)}
		for _, idx := range ids.Scenes(logical) {
			info.Entities[idx], _ = ids.Lookup(logical, idx)
		}
		r.Identities = append(r.Identities, info)
	}
	return r, nil
}

func printReport(w io.Writer, r *inspectReport) error {
	title := r.Name
	if title == "" {
		title = "(unnamed scenario)"
	}
	fmt.Fprintln(w, pterm.DefaultSection.Sprint(title))
	if h := r.Header; h != nil {
		fmt.Fprintf(w, "%s v%d, created %s, compressed: %v\n", h.Format, h.Version,
			h.CreatedAt.Format("2006-01-02 15:04:05"), h.Compressed)
		fmt.Fprintf(w, "checksum %s\n\n", h.Checksum)
	}

	scenes := pterm.TableData{{"Scene", "Timestamp", "Label", "Entities", "Placed"}}
	for _, s := range r.Scenes {
		scenes = append(scenes, []string{
			strconv.Itoa(s.Index),
			strconv.FormatFloat(s.Timestamp, 'g', -1, 64),
			s.Label,
			strconv.Itoa(s.Entities),
			strconv.Itoa(s.Placed),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(scenes).Srender()
	if err != nil {
		return fmt.Errorf("failed to render scene table: %w", err)
	}
	fmt.Fprintln(w, table)

	if len(r.Identities) == 0 {
		fmt.Fprintln(w, pterm.Gray("No logical identities registered."))
		return nil
	}

	header := []string{"Logical ID"}
	for _, s := range r.Scenes {
		header = append(header, "#"+strconv.Itoa(s.Index))
	}
	identities := pterm.TableData{header}
	for _, id := range r.Identities {
		row := []string{id.LogicalID}
		for _, s := range r.Scenes {
			row = append(row, valueOrDefault(id.Entities[s.Index], "-"))
		}
		identities = append(identities, row)
	}
	table, err = pterm.DefaultTable.WithHasHeader().WithData(identities).Srender()
	if err != nil {
		return fmt.Errorf("failed to render identity table: %w", err)
	}
	fmt.Fprintln(w, table)
	return nil
}
