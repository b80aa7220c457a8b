package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"loan-intake/internal/batch"
	"loan-intake/internal/bootstrap"
	"loan-intake/internal/queue"
	"loan-intake/internal/shared/storage/object"
)

var submitCmd = &cobra.Command{
	Use:   "submit <paths...>",
	Short: "Upload documents to the object store and enqueue them for the worker",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.SQSQueueURL == "" {
		return errors.New("SQS_QUEUE_URL is required")
	}
	paths, err := batch.ExpandPaths(args)
	if err != nil {
		return err
	}
	objects, err := bootstrap.BuildObjects(ctx, cfg)
	if err != nil {
		return err
	}
	q, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range paths {
		key, err := submitOne(cmd, objects, q, p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		fmt.Fprintf(out, "queued %s -> %s\n", p, key)
	}
	return nil
}

func submitOne(cmd *cobra.Command, objects object.Store, q queue.Client, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	key, _, err := objects.Save(cmd.Context(), filepath.Base(path), f)
	if err != nil {
		return "", err
	}
	if err := q.Send(cmd.Context(), queue.NewMessage(key, uuid.NewString(), time.Now())); err != nil {
		return "", err
	}
	return key, nil
}
