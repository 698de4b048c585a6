package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Precompute gallery embeddings into the persistent cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !app.cfg.CachePersist {
			fmt.Fprintln(os.Stderr, "warning: CACHE_PERSIST is false, embeddings will not outlive this process")
		}

		gallery, err := app.students.ListGallery(cmd.Context())
		if err != nil {
			return err
		}

		res, err := warm(cmd.Context(), gallery, app.cfg.ScanWorkers)
		if err != nil {
			return err
		}

		stats := app.stack.Cache.Stats()
		fmt.Printf("gallery: %d  embedded: %d  skipped: %d  extracted: %d\n",
			len(gallery), res.embedded, res.skipped, stats.Extract)
		return nil
	},
}

type warmResult struct {
	embedded int64
	skipped  int64
}

func warm(ctx context.Context, gallery []domain.GalleryEntry, workers int) (warmResult, error) {
	bar := progressbar.NewOptions(len(gallery),
		progressbar.OptionSetDescription("warming gallery"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	defer func() { _ = bar.Finish() }()

	var embedded, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, entry := range gallery {
		g.Go(func() error {
			defer func() { _ = bar.Add(1) }()

			_, err := app.stack.Cache.Resolve(gctx, entry.Fingerprint, entry.ImageRef)
			switch {
			case err == nil:
				embedded.Add(1)
			case isFatal(err):
				return fmt.Errorf("student %s: %w", entry.MatricNumber, err)
			default:
				skipped.Add(1)
				app.logger.Warn("gallery entry not embedded",
					"student_id", entry.StudentID,
					"matric_number", entry.MatricNumber,
					"error", err,
				)
			}
			return nil
		})
	}

	err := g.Wait()
	return warmResult{embedded: embedded.Load(), skipped: skipped.Load()}, err
}
