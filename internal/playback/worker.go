package playback

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/dionysus/internal/model"
)

// Renderer plays one request on a device and returns when rendering has
// finished.
type Renderer interface {
	Render(r *Request) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(r *Request) error

// Render calls f(r).
func (f RendererFunc) Render(r *Request) error {
	return f(r)
}

// Worker drains one queue into one renderer.
type Worker struct {
	name     string
	queue    *Queue
	renderer Renderer
	report   func(error)
	logger   *slog.Logger
	done     chan struct{}
}

// NewWorker creates a worker for queue. report receives a KindPlayback
// error for every failed render; it must not block.
func NewWorker(name string, queue *Queue, renderer Renderer, report func(error), logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if report == nil {
		report = func(error) {}
	}
	return &Worker{
		name:     name,
		queue:    queue,
		renderer: renderer,
		report:   report,
		logger:   logger.With("worker", name),
		done:     make(chan struct{}),
	}
}

// Name returns the destination name of the worker.
func (w *Worker) Name() string {
	return w.name
}

// Start runs the worker in a new goroutine.
func (w *Worker) Start() {
	go w.Run()
}

// Run processes items until the shutdown item is dequeued.
func (w *Worker) Run() {
	defer close(w.done)
	w.logger.Debug("playback worker started")

	for {
		item := w.queue.Dequeue()
		if item.IsShutdown() {
			w.logger.Debug("playback worker stopped")
			return
		}
		w.render(item.Request())
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// render plays one request and converts failures into reports.
func (w *Worker) render(r *Request) {
	if r == nil {
		r = &Request{}
	}

	start := time.Now()
	err := w.safeRender(r)
	if err == nil {
		w.logger.Debug("rendered clip", "clip", r.Name, "elapsed", time.Since(start))
		return
	}

	perr := model.NewError(model.KindPlayback, "render clip", err).WithDevice(w.name).WithPath(r.Path)
	w.logger.Warn("playback failed", "clip", r.Name, "error", err)
	w.report(perr)
}

func (w *Worker) safeRender(r *Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", model.ErrRendererPanic, p)
		}
	}()
	return w.renderer.Render(r)
}
