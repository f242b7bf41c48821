// Package gpu renders frames on a device context owned by a dedicated worker.
//
// A device context is not safe to share between threads, not even behind a
// lock. The Worker therefore creates its Context on a goroutine locked to its
// OS thread and never lets it escape; every device call is a message on the
// worker's request channel, answered on a per-call reply channel:
//
//	worker, err := gpu.StartWorker(gpu.SoftwareFactory(gpu.SoftwareOptions{}, nil), gpu.WorkerOptions{
//	    Size: gpu.Size{Width: 640, Height: 480},
//	})
//	if err != nil {
//	    return err
//	}
//	defer worker.Shutdown(context.Background())
//
//	result, err := worker.RenderFrame(ctx, gpu.RenderRequest{Elapsed: pts})
//
// # Swap chain
//
// Completed frames land in a SwapChain of two surfaces. The consumer checks
// the newest one out with TakeSurface, which never blocks, and hands it back
// with RecycleSurface. At most one surface is checked out at a time; while it
// is, the worker draws into the other one, and a frame the consumer never
// took is replaced by the next.
//
// # Failure
//
// A failed device call is fatal to the worker. The failing request and every
// later one return ErrWorkerFault wrapping the first cause; only Shutdown is
// still honoured. Requests to a stopped worker return ErrWorkerStopped.
//
// SoftwareContext is a CPU implementation of Context used when no hardware
// device is available, and by the tests.
package gpu
