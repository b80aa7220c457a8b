package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"loan-intake/internal/bootstrap"
	"loan-intake/internal/classify"
	"loan-intake/internal/documents"
	"loan-intake/internal/extraction"
)

var classifyExtract bool

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Classify one document without storing it",
	Long:  "Classify prints the document type. With --extract it also prints the extracted fields as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyExtract, "extract", false, "also run extraction and print the result")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	img, err := documents.ReadImage(filepath.Base(path), f)
	if err != nil {
		return err
	}

	gw, err := bootstrap.BuildGateway(ctx, cfg)
	if err != nil {
		return err
	}
	classifier := classify.New(gw)
	t, err := classifier.Classify(ctx, img)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\t%s\n", t, t.Family())
	if !classifyExtract {
		return nil
	}

	res, err := extraction.NewRouter(classifier, gw).Extract(ctx, t, img)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(b))
	return nil
}
