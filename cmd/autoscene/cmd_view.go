package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autoscene/autoscene/internal/scenegraph"
	"github.com/autoscene/autoscene/internal/visualization"
)

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <file.kbs> | --abox <scene.nt>...",
		Short: "Render a scenario as a scene graph",
		Long: `Extract one frame per scene and render it as DOT, JSON or an
interactive HTML viewer with a slider stepping through the scenes.

Entities bound to the same logical identity keep their color and key
across frames. With --abox, each file is one scene and entities are keyed
per scene.

Examples:
  autoscene view crossing.kbs                     # DOT to stdout
  autoscene view crossing.kbs --format json -o crossing.json
  autoscene view crossing.kbs --format html       # write HTML and open it
  autoscene view crossing.kbs --serve --watch     # live viewer, reloads on save
  autoscene view --abox s0.nt s1.nt --format html
  autoscene view --abox 'scenes/**/*.nt' --serve`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatFlag, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			serve, _ := cmd.Flags().GetBool("serve")
			watch, _ := cmd.Flags().GetBool("watch")
			addr, _ := cmd.Flags().GetString("addr")
			aboxes, _ := cmd.Flags().GetBool("abox")

			format, err := visualization.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			if watch && !serve {
				return fmt.Errorf("--watch requires --serve")
			}

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			paths := args
			if aboxes {
				if paths, err = expandPatterns(args); err != nil {
					return err
				}
			}
			v := &viewer{env: e, paths: paths, aboxes: aboxes}
			ctx := cmd.Context()
			g, err := v.graph(ctx)
			if err != nil {
				return err
			}

			open := e.cfg.Viewer.Open && !noOpen
			if serve {
				if addr == "" {
					addr = e.cfg.Viewer.Addr
				}
				return v.serve(cmd, g, addr, watch, open)
			}

			if format == visualization.FormatHTML {
				return writeStaticHTML(cmd, g, output, open)
			}
			data, err := visualization.Render(g, format)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (default stdout; html defaults to a temp file)")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
	cmd.Flags().Bool("serve", false, "Start a local viewer server instead of writing a file")
	cmd.Flags().Bool("watch", false, "Reload the viewer when the input files change (requires --serve)")
	cmd.Flags().String("addr", "", "Viewer listen address (default from config, else a free localhost port)")
	cmd.Flags().Bool("abox", false, "Arguments are single-scene ABox files instead of one container")

	return cmd
}

// viewer loads the input files and extracts their scene graph.
type viewer struct {
	env    *env
	paths  []string
	aboxes bool
}

func (v *viewer) graph(ctx context.Context) (*scenegraph.Graph, error) {
	sc, err := v.env.load(ctx, v.paths, v.aboxes)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	x := v.env.extractor()
	if v.aboxes {
		return x.FromScenes(ctx, scenarioTitle(v.paths), sc.Scenes())
	}
	return x.FromScenario(ctx, sc)
}

// scenarioTitle names a scenario assembled from ABox files.
func scenarioTitle(paths []string) string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		names = append(names, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	return strings.Join(names, ", ")
}

// writeStaticHTML renders the graph to a self-contained HTML file.
func writeStaticHTML(cmd *cobra.Command, g *scenegraph.Graph, output string, open bool) error {
	htmlBytes, err := visualization.RenderHTML(g)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}

	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "autoscene-view.html")
	}
	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Viewer written to %s\n", outPath)

	if open {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}

// serve runs the live viewer until the first shutdown signal.
func (v *viewer) serve(cmd *cobra.Command, g *scenegraph.Graph, addr string, watch, open bool) error {
	srv := visualization.NewServer(g, addr, v.env.metrics)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && srv.Addr() == "" {
		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if srv.Addr() == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + srv.Addr()
	fmt.Fprintf(cmd.OutOrStdout(), "Viewer running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if open {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if watch {
		go func() {
			err := watchFiles(ctx, v.paths, watchDebounce, v.env.logger, func(ctx context.Context) error {
				g, err := v.graph(ctx)
				if err != nil {
					return err
				}
				srv.Update(g)
				v.env.logger.Info("viewer reloaded", "frames", len(g.Frames))
				return nil
			})
			if err != nil {
				v.env.logger.Error("file watcher stopped", "error", err)
			}
		}()
	}

	// Block until server exits
	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
