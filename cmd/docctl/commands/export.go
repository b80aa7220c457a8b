package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"loan-intake/internal/bootstrap"
	"loan-intake/internal/documents"
	"loan-intake/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <family>",
	Short: "Write every stored record of a family to an xlsx workbook",
	Long:  "Families: national_id, hr_letter, utility_receipt.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default family-<timestamp>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	family, ok := documents.ParseFamily(args[0])
	if !ok {
		return fmt.Errorf("unknown family %q", args[0])
	}

	storage, err := bootstrap.BuildStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	data, err := export.NewService(storage.Records).XLSX(ctx, family)
	if err != nil {
		return err
	}
	path := exportOut
	if path == "" {
		path = export.FileName(family, time.Now())
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(data))
	return nil
}
