package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/recognition"
)

var matchThreshold float64

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Run a recognition decision against the gallery without recording it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		threshold := app.cfg.Threshold
		if cmd.Flags().Changed("threshold") {
			if matchThreshold < 0 || matchThreshold > 1 {
				return domain.ErrInvalidThreshold
			}
			threshold = matchThreshold
		}

		probe, err := app.stack.Pipeline.Extract(cmd.Context(), data)
		if err != nil {
			return fmt.Errorf("probe: %w", err)
		}

		gallery, err := app.students.ListGallery(cmd.Context())
		if err != nil {
			return err
		}

		matcher := recognition.NewMatcher(app.stack.Cache, recognition.MatcherConfig{
			Threshold: threshold,
			Workers:   app.cfg.ScanWorkers,
		}, app.logger)

		decision, err := matcher.Match(cmd.Context(), probe, gallery)
		if err != nil {
			return err
		}

		printDecision(decision, gallery, threshold)
		return nil
	},
}

func init() {
	matchCmd.Flags().Float64VarP(&matchThreshold, "threshold", "t", 0, "Override FACE_RECOGNITION_THRESHOLD for this run")
}

func printDecision(d *domain.MatchDecision, gallery []domain.GalleryEntry, threshold float64) {
	fmt.Printf("outcome:     %s\n", d.Outcome)
	fmt.Printf("confidence:  %.4f (threshold %.2f)\n", d.Confidence, threshold)
	if d.StudentID != nil {
		for _, e := range gallery {
			if e.StudentID == *d.StudentID {
				fmt.Printf("student:     %s (%s)\n", e.MatricNumber, e.StudentID)
				break
			}
		}
	}
	fmt.Printf("candidates:  %d scanned, %d skipped of %d\n", d.Scanned, d.Skipped, d.Candidates)
	if d.TimedOut {
		fmt.Println("timed out:   true")
	}
}

func isFatal(err error) bool {
	return errors.Is(err, domain.ErrResourceExhausted) || errors.Is(err, domain.ErrEngineUnavailable)
}
