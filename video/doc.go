// Package video provides frames and CPU pixel processing for framegen.
//
// # Frames
//
// A Frame carries pixels laid out by a format.Geometry, or an opaque GPU
// surface handle when the producer hands frames over without readback.
// Frames borrowed from a Pool or a swap chain are returned with Release:
//
//	pool := video.NewPool()
//	frame := pool.Get(geo)
//	defer frame.Release()
//
// # Transform
//
// Transform is the stride-aware, allocation-free pixel remap used by the
// transform stage. It never panics on bad input; precondition failures come
// back as ErrGeometryMismatch, ErrShortBuffer or ErrUnsupportedFormat:
//
//	if err := video.Transform(inGeo, in, outGeo, out); err != nil {
//	    return fmt.Errorf("transform failed: %w", err)
//	}
//
// Output formats other than BGRx have no conversion and fail the operation.
//
// # Patterns
//
// FillPulse paints the brightness pulse the CPU test source produces, the
// same pattern the GPU source clears its surfaces to.
package video
