// icelift - Loads Parquet files into an Iceberg REST catalog table.
// Normalizes decimal columns the catalog cannot ingest as written.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "icelift",
	Short: "icelift - Load Parquet files into an Iceberg catalog",
	Long: `icelift discovers Parquet files in a local directory or S3 prefix,
normalizes decimal columns that catalogs reject (oversized precision,
fixed-length byte array storage), and appends them to a table in an
Iceberg REST catalog. The namespace and table are created on first use.

Examples:
  icelift load -L ./data -E http://localhost:8181 -w s3://warehouse/ -N analytics -t events
  icelift load -b data-lake -p exports/2026/ -E http://localhost:8181 -w s3://warehouse/ -N analytics -t events
  icelift list -b data-lake -p exports/`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the icelift version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("icelift %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
