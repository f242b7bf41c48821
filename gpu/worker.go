package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/framegen/format"
	"github.com/opd-ai/framegen/video"
)

// DefaultStartupTimeout bounds the wait for a worker to create its context.
const DefaultStartupTimeout = 5 * time.Second

// WorkerOptions configures a render worker.
type WorkerOptions struct {
	// Size is the initial surface size.
	Size Size
	// SwapChainDepth is the swap chain capacity; 0 means DefaultSwapChainDepth.
	SwapChainDepth int
	// StartupTimeout bounds StartWorker; 0 means DefaultStartupTimeout.
	StartupTimeout time.Duration
	// QueueDepth is the request channel buffer; 0 means unbuffered.
	QueueDepth int
}

// RenderRequest describes one frame for the worker to draw.
type RenderRequest struct {
	// Elapsed is the stream time of the frame, used by the pulse clear.
	Elapsed time.Duration
	// Texture, when set, is blitted over the surface instead of the clear.
	Texture image.Image
	// Readback, when set, receives the finished frame as BGRx laid out by
	// Geometry. A zero Geometry means the tightly packed layout of the
	// format last set with SetFormat.
	Readback []byte
	Geometry format.Geometry
}

// RenderResult describes a completed frame.
type RenderResult struct {
	Surface  Surface
	ReadBack bool
}

// message is a request to the worker goroutine.
type message interface {
	isMessage()
}

type getSwapChainMsg struct {
	reply chan swapChainReply
}

type swapChainReply struct {
	swapChain *SwapChain
	err       error
}

type resizeMsg struct {
	size  Size
	reply chan error
}

type setFormatMsg struct {
	desc  format.Descriptor
	reply chan error
}

type renderFrameMsg struct {
	req   RenderRequest
	reply chan renderReply
}

type renderReply struct {
	result RenderResult
	err    error
}

type shutdownMsg struct {
	reply chan error
}

func (getSwapChainMsg) isMessage() {}
func (resizeMsg) isMessage()       {}
func (setFormatMsg) isMessage()    {}
func (renderFrameMsg) isMessage()  {}
func (shutdownMsg) isMessage()     {}

// Worker owns one device context on a dedicated OS thread and serializes
// every device call through its request channel.
//
// All methods may be called from any goroutine. Replies travel on buffered
// one-shot channels, so a caller abandoning a request through its context
// never blocks the worker.
type Worker struct {
	id       uuid.UUID
	requests chan message
	done     chan struct{}

	mu     sync.RWMutex
	closed bool

	// Owned by the worker goroutine.
	device    Context
	swapChain *SwapChain
	desc      format.Descriptor
	fault     error

	// Written before done closes.
	exitErr error
}

// StartWorker starts a render worker. The factory runs on the worker's
// locked OS thread. StartWorker returns once the worker has created its
// context and swap chain and answered the swap chain handshake. Factory or
// allocation failure wraps ErrResourceExhausted.
func StartWorker(factory ContextFactory, opts WorkerOptions) (*Worker, error) {
	if factory == nil {
		return nil, errors.New("context factory cannot be nil")
	}
	if !opts.Size.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSize, opts.Size)
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	if opts.QueueDepth < 0 {
		opts.QueueDepth = 0
	}

	w := &Worker{
		id:       uuid.New(),
		requests: make(chan message, opts.QueueDepth),
		done:     make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function":  "StartWorker",
		"worker_id": w.id.String(),
		"size":      opts.Size.String(),
	}).Info("Starting render worker")

	go w.run(factory, opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.StartupTimeout)
	defer cancel()

	if _, err := w.SwapChain(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrStartupTimeout, opts.StartupTimeout)
			w.Close()
		}
		logrus.WithFields(logrus.Fields{
			"function":  "StartWorker",
			"worker_id": w.id.String(),
			"error":     err.Error(),
		}).Error("Render worker failed to start")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "StartWorker",
		"worker_id": w.id.String(),
	}).Info("Render worker started")

	return w, nil
}

// ID returns the worker identity used in logs.
func (w *Worker) ID() uuid.UUID {
	return w.id
}

// Done is closed once the worker has destroyed its swap chain, released its
// context and exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// SwapChain returns the worker's swap chain handle.
func (w *Worker) SwapChain(ctx context.Context) (*SwapChain, error) {
	reply := make(chan swapChainReply, 1)
	if err := w.send(ctx, getSwapChainMsg{reply: reply}); err != nil {
		return nil, err
	}
	r, err := await(ctx, w, reply)
	if err != nil {
		return nil, err
	}
	return r.swapChain, r.err
}

// Resize changes the swap chain surface size.
func (w *Worker) Resize(ctx context.Context, size Size) error {
	reply := make(chan error, 1)
	if err := w.send(ctx, resizeMsg{size: size, reply: reply}); err != nil {
		return err
	}
	r, err := await(ctx, w, reply)
	if err != nil {
		return err
	}
	return r
}

// SetFormat records the negotiated descriptor and resizes the swap chain to
// match it.
func (w *Worker) SetFormat(ctx context.Context, d format.Descriptor) error {
	reply := make(chan error, 1)
	if err := w.send(ctx, setFormatMsg{desc: d, reply: reply}); err != nil {
		return err
	}
	r, err := await(ctx, w, reply)
	if err != nil {
		return err
	}
	return r
}

// RenderFrame draws one frame and presents it to the swap chain.
func (w *Worker) RenderFrame(ctx context.Context, req RenderRequest) (RenderResult, error) {
	reply := make(chan renderReply, 1)
	if err := w.send(ctx, renderFrameMsg{req: req, reply: reply}); err != nil {
		return RenderResult{}, err
	}
	r, err := await(ctx, w, reply)
	if err != nil {
		return RenderResult{}, err
	}
	return r.result, r.err
}

// Shutdown stops the worker and waits for its teardown to finish. It is
// accepted even by a failed worker; on a stopped worker it returns nil.
func (w *Worker) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := w.send(ctx, shutdownMsg{reply: reply}); err != nil {
		if errors.Is(err, ErrWorkerStopped) {
			return nil
		}
		return err
	}
	r, err := await(ctx, w, reply)
	if errors.Is(err, ErrWorkerStopped) {
		err = nil
	}
	if err != nil {
		return err
	}

	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r
}

// Close closes the request channel. The worker finishes queued requests,
// tears down and exits; Close does not wait for that.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.requests)
	}
}

func (w *Worker) send(ctx context.Context, msg message) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrWorkerStopped
	}
	select {
	case <-w.done:
		return w.stoppedErr()
	default:
	}

	select {
	case w.requests <- msg:
		return nil
	case <-w.done:
		return w.stoppedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await waits for a reply, preferring it over a concurrent worker exit.
func await[T any](ctx context.Context, w *Worker, reply <-chan T) (T, error) {
	var zero T
	select {
	case r := <-reply:
		return r, nil
	case <-w.done:
		select {
		case r := <-reply:
			return r, nil
		default:
			return zero, w.stoppedErr()
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// stoppedErr is valid once done is closed.
func (w *Worker) stoppedErr() error {
	if w.exitErr != nil {
		return w.exitErr
	}
	return ErrWorkerStopped
}

// run is the worker goroutine.
func (w *Worker) run(factory ContextFactory, opts WorkerOptions) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	if err := w.init(factory, opts); err != nil {
		w.exitErr = err
		return
	}

	for msg := range w.requests {
		if w.handle(msg) {
			break
		}
	}

	w.teardown()
}

func (w *Worker) init(factory ContextFactory, opts WorkerOptions) error {
	device, err := factory()
	if err != nil {
		if !errors.Is(err, ErrResourceExhausted) {
			err = fmt.Errorf("%w: %w", ErrResourceExhausted, err)
		}
		return fmt.Errorf("create context: %w", err)
	}

	swapChain, err := CreateSwapChain(device, opts.Size, opts.SwapChainDepth)
	if err != nil {
		if relErr := device.Release(); relErr != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Worker.init",
				"worker_id": w.id.String(),
				"error":     relErr.Error(),
			}).Warn("Context release failed after swap chain error")
		}
		return fmt.Errorf("create swap chain: %w", err)
	}

	w.device = device
	w.swapChain = swapChain
	return nil
}

// handle runs one message to completion and reports whether the loop ends.
func (w *Worker) handle(msg message) bool {
	switch m := msg.(type) {
	case shutdownMsg:
		m.reply <- w.teardown()
		return true

	case getSwapChainMsg:
		if w.fault != nil {
			m.reply <- swapChainReply{err: w.faultErr()}
			return false
		}
		m.reply <- swapChainReply{swapChain: w.swapChain}

	case resizeMsg:
		if w.fault != nil {
			m.reply <- w.faultErr()
			return false
		}
		m.reply <- w.check(w.swapChain.Resize(w.device, m.size))

	case setFormatMsg:
		if w.fault != nil {
			m.reply <- w.faultErr()
			return false
		}
		m.reply <- w.setFormat(m.desc)

	case renderFrameMsg:
		if w.fault != nil {
			m.reply <- renderReply{err: w.faultErr()}
			return false
		}
		result, err := w.render(m.req)
		m.reply <- renderReply{result: result, err: w.check(err)}
	}
	return false
}

func (w *Worker) setFormat(d format.Descriptor) error {
	if _, err := format.Validate(d); err != nil {
		return err
	}
	if err := w.swapChain.Resize(w.device, SizeOf(d)); err != nil {
		return err
	}
	w.desc = d

	logrus.WithFields(logrus.Fields{
		"function":   "Worker.setFormat",
		"worker_id":  w.id.String(),
		"descriptor": d.String(),
	}).Debug("Render worker format set")
	return nil
}

func (w *Worker) render(req RenderRequest) (RenderResult, error) {
	size := w.swapChain.Size()
	if req.Readback != nil && len(req.Geometry.Planes) == 0 && w.desc.Width > 0 {
		geo, err := format.Validate(w.desc.WithFormat(format.PixelFormatBGRx))
		if err != nil {
			return RenderResult{}, err
		}
		req.Geometry = geo
	}
	if req.Readback != nil {
		bounds := image.Rect(0, 0, size.Width, size.Height)
		if err := checkReadback(bounds, req.Readback, req.Geometry); err != nil {
			return RenderResult{}, err
		}
	}

	if req.Texture != nil && req.Texture.Bounds().Empty() {
		return RenderResult{}, fmt.Errorf("%w: empty texture", ErrInvalidSize)
	}

	slot, handle, err := w.swapChain.acquire(w.device)
	if err != nil {
		return RenderResult{}, err
	}
	if err := w.draw(handle, req); err != nil {
		w.swapChain.abandon(slot)
		return RenderResult{}, err
	}

	surface, err := w.swapChain.present(slot)
	if err != nil {
		return RenderResult{}, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Worker.render",
		"worker_id":  w.id.String(),
		"generation": surface.generation,
		"readback":   req.Readback != nil,
	}).Trace("Frame rendered")

	return RenderResult{Surface: surface, ReadBack: req.Readback != nil}, nil
}

// draw renders one frame into handle and reads it back when asked.
func (w *Worker) draw(handle SurfaceHandle, req RenderRequest) error {
	if err := w.device.BindRenderTarget(handle); err != nil {
		return fmt.Errorf("bind render target: %w", err)
	}
	var err error
	if req.Texture != nil {
		err = w.device.Blit(req.Texture)
	} else {
		err = w.device.Clear(pulseClear(video.PulseColor(video.PulseBrightness(req.Elapsed))))
	}
	if err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	if req.Readback != nil {
		if err := w.device.ReadPixels(req.Readback, req.Geometry); err != nil {
			return fmt.Errorf("read pixels: %w", err)
		}
	}
	if err := w.device.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// check marks the worker failed when err came from the device. Request
// errors the caller can correct leave the worker usable.
func (w *Worker) check(err error) error {
	if err == nil || isRequestError(err) {
		return err
	}
	w.fault = err

	logrus.WithFields(logrus.Fields{
		"function":  "Worker.check",
		"worker_id": w.id.String(),
		"error":     err.Error(),
	}).Error("Render worker failed")

	return w.faultErr()
}

func isRequestError(err error) bool {
	return errors.Is(err, ErrSurfaceCheckedOut) ||
		errors.Is(err, ErrInvalidSize) ||
		errors.Is(err, ErrInvalidReadback) ||
		errors.Is(err, format.ErrInvalidFormat)
}

func (w *Worker) faultErr() error {
	return fmt.Errorf("%w: %w", ErrWorkerFault, w.fault)
}

// teardown destroys the swap chain, then releases the context. It runs once.
func (w *Worker) teardown() error {
	if w.device == nil {
		return nil
	}

	var errs []error
	if err := w.swapChain.Destroy(w.device); err != nil && !errors.Is(err, ErrSwapChainDestroyed) {
		errs = append(errs, fmt.Errorf("destroy swap chain: %w", err))
	}
	if err := w.device.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release context: %w", err))
	}
	w.device = nil

	err := errors.Join(errs...)
	logrus.WithFields(logrus.Fields{
		"function":  "Worker.teardown",
		"worker_id": w.id.String(),
		"failed":    w.fault != nil,
	}).Info("Render worker stopped")
	return err
}
