// Package pipeline is a minimal in-process host for framegen stages.
//
// A Runner links one source, zero or more transforms and a sink callback. It
// negotiates a fixed format along the chain, then streams frames with two
// goroutines under an errgroup: one produces at the source's pace, the other
// pushes each frame through the transforms and into the sink.
//
//	runner := pipeline.NewRunner(src, sink, pipeline.Options{Frames: 90}, xform)
//	if err := runner.Negotiate(ctx, desc); err != nil { ... }
//	err := runner.Run(ctx)
//	_ = runner.Stop(ctx)
//
// Every frame is released exactly once by the runner, after the sink returns.
// The sink must copy anything it keeps.
package pipeline
