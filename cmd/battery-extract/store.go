// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/battery-extract/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Query the SQLite results index",
	Long: `Store lists documents indexed by previous runs and exports the
extracted experiment records to YAML or JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		indexDir, _ := cmd.Flags().GetString("index-dir")
		s, err := store.NewStore(indexDir)
		if err != nil {
			return err
		}
		defer s.Close()

		verdict, _ := cmd.Flags().GetString("verdict")
		doi, _ := cmd.Flags().GetString("doi")
		opts := store.QueryOptions{Verdict: verdict, DOI: doi}

		if export, _ := cmd.Flags().GetBool("export"); export {
			if err := s.ExportYAML(opts); err != nil {
				return err
			}
			if err := s.ExportJSON(opts); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Exported to %s/export.{yaml,json}\n", indexDir)
			return nil
		}

		docs, err := s.List(opts)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(docs)
		}

		for _, d := range docs {
			fmt.Fprintf(os.Stdout, "%-10s %3d records  %s", d.Verdict, d.RecordCount, d.Path)
			if d.ErrorKind != "" {
				fmt.Fprintf(os.Stdout, "  (%s)", d.ErrorKind)
			}
			fmt.Fprintln(os.Stdout)
		}
		return nil
	},
}

func init() {
	storeCmd.Flags().String("index-dir", "index", "directory containing the results database")
	storeCmd.Flags().String("verdict", "", "filter by verdict: battery-related, not-battery-related, unknown")
	storeCmd.Flags().String("doi", "", "filter by exact DOI")
	storeCmd.Flags().Bool("json", false, "output results as JSON")
	storeCmd.Flags().Bool("export", false, "export indexed records to YAML and JSON files")

	rootCmd.AddCommand(storeCmd)
}
