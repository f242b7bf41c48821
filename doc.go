// Package framegen produces and transforms raw video frames at a target frame
// rate.
//
// The package provides the stages a host pipeline drives: a TransformStage
// that negotiates formats and tone-remaps frames into BGRx, a TestSource
// producing a paced brightness pulse on the CPU, and a GLSource rendering the
// same pulse (or a textured blit) on a device context owned by a dedicated
// render worker. Subpackages hold the pieces: format negotiation (format),
// pixels and frames (video), drift-free pacing (pacing) and the worker with
// its swap chain (gpu).
//
// # Getting Started
//
// Configure a source, then pull frames from it on a streaming goroutine:
//
//	src := framegen.NewGLSource("gl", framegen.GLSourceOptions{
//	    Output: framegen.OutputReadback,
//	})
//	if err := src.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Stop(context.Background())
//
//	err := src.SetFormat(ctx, format.Descriptor{
//	    Format:    format.PixelFormatBGRx,
//	    Width:     640,
//	    Height:    512,
//	    FrameRate: format.Fraction{Num: 30, Den: 1},
//	})
//
//	for {
//	    frame, err := src.Produce(ctx)
//	    if err != nil {
//	        break
//	    }
//	    // use frame
//	    frame.Release()
//	}
//
// # Capabilities
//
// Stages declare what they support with a Capability set. The Negotiate,
// Configure, Consume and Produce helpers dispatch a host call to a stage and
// return ErrCapabilityNotDeclared when the stage did not declare it:
//
//	out, err := framegen.Consume(ctx, stage, frame)
//
// # Lifecycle
//
// Every stage moves Unconfigured → Configured → Streaming → Stopped. A new
// format while streaming re-enters Configured; for the GPU source only the
// swap chain is resized and the worker keeps running. Frame operations before
// configuration return ErrNotNegotiated.
//
// # Errors
//
// Classify maps an error onto the taxonomy. Negotiation and state errors are
// recoverable by the caller. Worker faults and resource exhaustion are
// terminal for the stream (IsTerminal); nothing retries automatically.
//
//	if framegen.IsTerminal(err) {
//	    src.Stop(ctx)
//	}
//
// # Callbacks
//
// OnFrameReady and OnError observe every completed frame and every error a
// stage reports.
package framegen
