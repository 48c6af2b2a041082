package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"routines/runtime-go/pkg/runtime"
)

// ErrHandleRunning is returned when a Handle is asked to start while a
// previous task is still executing.
var ErrHandleRunning = errors.New("engine: handle is already running")

// Handle runs Start and Resume for one session on a goroutine, so callers
// can wait for the outcome or stop it.
type Handle struct {
	engine  *Engine
	session string

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	result  *RoutineResult
	err     error
	running bool
}

// Handle returns a lifecycle handle for session.
func (e *Engine) Handle(session string) *Handle {
	done := make(chan struct{})
	close(done)
	return &Handle{engine: e, session: session, done: done}
}

// Session returns the session the handle drives.
func (h *Handle) Session() string { return h.session }

// Start begins running the named routine in the background.
func (h *Handle) Start(ctx context.Context, name string, args []runtime.Value, kwargs map[string]runtime.Value, opts ...StartOption) error {
	return h.launch(ctx, func(ctx context.Context) (*RoutineResult, error) {
		return h.engine.Start(ctx, h.session, name, args, kwargs, opts...)
	})
}

// Resume delivers value to the paused routine in the background.
func (h *Handle) Resume(ctx context.Context, value runtime.Value) error {
	return h.launch(ctx, func(ctx context.Context) (*RoutineResult, error) {
		return h.engine.Resume(ctx, h.session, value)
	})
}

// Wait blocks until the current task finishes and returns its outcome.
func (h *Handle) Wait() (*RoutineResult, error) {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	<-done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Stop cancels the current task and waits for it to return. Frames keep
// the state persisted at the last suspension.
func (h *Handle) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	done := h.done
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done
}

// Running reports whether a task is executing.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Handle) launch(parent context.Context, task func(context.Context) (*RoutineResult, error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrHandleRunning
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	h.cancel, h.done, h.running = cancel, done, true
	h.result, h.err = nil, nil
	go func() {
		result, err := safeInvoke(ctx, task)
		cancel()
		h.mu.Lock()
		h.result, h.err, h.running = result, err, false
		h.mu.Unlock()
		close(done)
	}()
	return nil
}

func safeInvoke(ctx context.Context, task func(context.Context) (*RoutineResult, error)) (result *RoutineResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("engine: panic: %v", r)
		}
	}()
	return task(ctx)
}
