package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newExportABoxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-abox <file.kbs> <dir>",
		Short: "Write each scene of a container as a single-scene ABox file",
		Long: `Write every scene of a .kbs container to <dir>/scene-NNNN.nt as an
N-Triples ABox importing the traffic ontology. Logical identities are not
part of single-scene files.

Examples:
  autoscene export-abox crossing.kbs ./scenes`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dir := args[1]

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			sc, err := e.load(ctx, args[:1], false)
			if err != nil {
				return err
			}
			defer sc.Close()

			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
			files := make([]string, 0, sc.Len())
			for i, s := range sc.All() {
				path := filepath.Join(dir, fmt.Sprintf("scene-%04d.nt", i))
				if err := s.SaveABox(ctx, path); err != nil {
					return fmt.Errorf("failed to export scene %d: %w", i, err)
				}
				files = append(files, path)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"files": files,
				})
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	return cmd
}

func newImportABoxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-abox <scene.nt>... -o <file.kbs>",
		Short: "Pack single-scene ABox files into a container",
		Long: `Build a scenario with one scene per ABox file, in argument order with
timestamps 0, 1, ..., and save it as a .kbs container. No logical
identities are inferred.

Examples:
  autoscene import-abox scenes/*.nt -o retrofit.kbs --name retrofit`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")
			name, _ := cmd.Flags().GetString("name")
			if output == "" {
				return fmt.Errorf("--output is required")
			}

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			sc, err := e.load(ctx, args, true)
			if err != nil {
				return err
			}
			defer sc.Close()
			if name == "" {
				name = scenarioTitle(args)
			}
			sc.SetName(name)

			if err := e.save(ctx, sc, output); err != nil {
				return fmt.Errorf("failed to save %s: %w", output, err)
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"path":   output,
					"name":   name,
					"scenes": sc.Len(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Packed %d scenes into %s\n", sc.Len(), output)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Container file to write")
	cmd.Flags().String("name", "", "Scenario name (default: derived from the file names)")
	return cmd
}
