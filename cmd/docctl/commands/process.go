package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"loan-intake/internal/batch"
	"loan-intake/internal/bootstrap"
	"loan-intake/internal/intake"
)

var (
	processSource      string
	processPrefix      string
	processConcurrency int
	processJSON        bool
)

var processCmd = &cobra.Command{
	Use:   "process [paths...]",
	Short: "Run the pipeline over files, directories or stored objects",
	Long: `Process classifies, extracts and stores every document given. Directories are
walked for supported files. With --source the documents are listed from the
configured object store under --prefix instead. A failed document is reported
and skipped.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processSource, "source", "", "read from an object store (local or s3) instead of paths")
	processCmd.Flags().StringVar(&processPrefix, "prefix", "", "object key prefix when --source is set")
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 4, "documents processed at once")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "print one JSON line per document")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		source batch.Opener = batch.Files{}
		keys   []string
		err    error
	)
	switch {
	case processSource != "":
		c := cfg
		c.ObjectStoreType = processSource
		store, err := bootstrap.BuildObjects(ctx, c)
		if err != nil {
			return err
		}
		keys, err = store.List(ctx, processPrefix)
		if err != nil {
			return fmt.Errorf("list %s: %w", processPrefix, err)
		}
		source = store
	case len(args) > 0:
		keys, err = batch.ExpandPaths(args)
		if err != nil {
			return err
		}
	default:
		return errors.New("give at least one path or --source")
	}
	if len(keys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no documents found")
		return nil
	}

	storage, err := bootstrap.BuildStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()
	gw, err := bootstrap.BuildGateway(ctx, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	runner := &batch.Runner{
		Pipeline:    intake.NewService(gw, storage.Records),
		Source:      source,
		Concurrency: processConcurrency,
		OnItem:      func(it batch.Item) { printItem(out, it) },
	}
	rep := runner.Run(ctx, keys)

	fmt.Fprintf(out, "%d documents: %d stored, %d failed (%s)\n", len(rep.Items), rep.Succeeded, rep.Failed, rep.Elapsed.Round(time.Millisecond))
	if rep.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", rep.Failed, len(rep.Items))
	}
	return nil
}

func printItem(w io.Writer, it batch.Item) {
	if processJSON {
		line := map[string]any{"key": it.Key, "ok": it.OK()}
		if it.OK() {
			line["outcome"] = it.Outcome
		} else {
			line["code"] = it.Code
			line["error"] = it.Err.Error()
		}
		b, _ := json.Marshal(line)
		fmt.Fprintln(w, string(b))
		return
	}
	if it.OK() {
		fmt.Fprintf(w, "ok    %s  %s  record=%d\n", it.Key, it.Outcome.DocumentType, it.Outcome.RecordID)
		return
	}
	fmt.Fprintf(w, "FAIL  %s  %s: %v\n", it.Key, it.Code, it.Err)
}
