// Package converter renders a directory of Mermaid diagram sources to images
// using a bounded pool of workers. The external converter is reached through the
// Renderer interface, so the scheduling and accounting here are independent of
// how a single diagram is actually rendered.
package converter

import (
	"context"
	"fmt"
	"log/slog"
)

// Convert is the library entry point: it validates opts, builds an Engine and
// runs it. See Engine.Run for the meaning of the returned error.
func Convert(ctx context.Context, opts Options) (Report, error) {
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	logger := slog.New(opts.Logger)

	if opts.Threads < 0 {
		// Negative counts are legal and fall back to the CPU count.
		logger.Debug("Negative thread count requested, using default", slog.Int("requested", opts.Threads))
	}

	engine, err := NewEngine(ctx, opts)
	if err != nil {
		logger.Error("Invalid options", slog.String("error", err.Error()))
		return Report{}, err
	}
	return engine.Run()
}
