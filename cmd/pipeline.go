package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/audiolibrelab/playcapture/internal/export"
	"github.com/audiolibrelab/playcapture/internal/play"
)

// executePipeline runs the pipeline steps that follow startStep.
func executePipeline(startStep rune) error {
	if pipeline == "" {
		return nil
	}

	steps := []rune(strings.ToLower(pipeline))

	// Find the starting position in the pipeline
	startIndex := -1
	for i, step := range steps {
		if step == startStep {
			startIndex = i
			break
		}
	}

	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	return runSteps(context.Background(), steps[startIndex+1:])
}

func runSteps(ctx context.Context, steps []rune) error {
	for _, step := range steps {
		fmt.Printf("Pipeline: executing step '%c'...\n", step)

		switch step {
		case 'r':
			if _, err := record(ctx, 0); err != nil {
				return fmt.Errorf("pipeline record failed: %w", err)
			}
			fmt.Println("Pipeline: capture completed")

		case 'e':
			path, err := export.New(cfg).Export(ctx)
			if err != nil {
				return fmt.Errorf("pipeline export failed: %w", err)
			}
			fmt.Printf("Pipeline: exported to %s\n", path)

		case 'p':
			if err := play.New(cfg).Play(ctx); err != nil {
				return fmt.Errorf("pipeline preview failed: %w", err)
			}
			fmt.Println("Pipeline: preview completed")

		default:
			return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, e=export, p=preview)", step)
		}
	}
	return nil
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	validSteps := map[rune]bool{
		'r': true, // record
		'e': true, // export
		'p': true, // preview
	}

	for _, step := range strings.ToLower(pipeline) {
		if !validSteps[step] {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: r=record, e=export, p=preview)", step)
		}
	}

	return nil
}
