// Package shutdown turns SIGINT/SIGTERM into context cancellation and runs
// cleanup hooks on the way out.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Hook is a cleanup function run when the process exits.
type Hook struct {
	Name     string
	Priority int // Lower priority runs first
	Fn       func(ctx context.Context) error
}

// Config configures the Handler.
type Config struct {
	// Timeout bounds all hooks together (default: 10s).
	Timeout time.Duration
	// Signals to listen for (default: SIGTERM, SIGINT).
	Signals []os.Signal
	Logger  *slog.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// Handler owns the root context of a run. A signal cancels the context;
// hooks run once, when Close is called.
type Handler struct {
	mu      sync.Mutex
	hooks   []Hook
	timeout time.Duration
	signals []os.Signal
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sigCh  chan os.Signal
	caught os.Signal

	started   bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a Handler whose context derives from parent.
func New(parent context.Context, cfg *Config) *Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	signals := cfg.Signals
	if len(signals) == 0 {
		signals = DefaultConfig().Signals
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(parent)
	return &Handler{
		timeout: timeout,
		signals: signals,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Context is canceled when a signal arrives or Shutdown is called.
func (h *Handler) Context() context.Context { return h.ctx }

// RegisterHook adds a cleanup hook.
func (h *Handler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.hooks = append(h.hooks, Hook{Name: name, Priority: priority, Fn: fn})
	sort.SliceStable(h.hooks, func(i, j int) bool { return h.hooks[i].Priority < h.hooks[j].Priority })
}

// Add registers a prepared Hook.
func (h *Handler) Add(hook Hook) {
	h.RegisterHook(hook.Name, hook.Priority, hook.Fn)
}

// Start begins listening for signals.
func (h *Handler) Start() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.sigCh = make(chan os.Signal, 1)
	signal.Notify(h.sigCh, h.signals...)
	h.mu.Unlock()

	go func() {
		select {
		case sig := <-h.sigCh:
			h.mu.Lock()
			h.caught = sig
			h.mu.Unlock()
			h.logger.Warn("received signal, cancelling run", "signal", sig.String())
			h.cancel()
		case <-h.ctx.Done():
		}
	}()
}

// Shutdown cancels the context without a signal.
func (h *Handler) Shutdown() {
	h.cancel()
}

// Signal returns the signal that canceled the run, or nil.
func (h *Handler) Signal() os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caught
}

// Interrupted reports whether a signal canceled the run.
func (h *Handler) Interrupted() bool {
	return h.Signal() != nil
}

// Close stops signal delivery and runs every hook in priority order, even
// when some fail. It is safe to call more than once; hooks run only the
// first time. The returned error joins all hook failures.
func (h *Handler) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		if h.sigCh != nil {
			signal.Stop(h.sigCh)
		}
		hooks := make([]Hook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		// Hooks get a fresh context: the run context may already be canceled.
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		var errs []error
		for _, hook := range hooks {
			if err := hook.Fn(ctx); err != nil {
				h.logger.Error("shutdown hook failed", "hook", hook.Name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
			}
		}
		h.cancel()
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}

// TracingHook flushes and stops the tracer provider.
func TracingHook(shutdownFn func(ctx context.Context) error) Hook {
	return Hook{Name: "tracing", Priority: 80, Fn: shutdownFn}
}

// ProviderHook releases a backend client. p is closed only if it
// implements io.Closer.
func ProviderHook(p any) Hook {
	return Hook{
		Name:     "llm-provider",
		Priority: 50,
		Fn: func(ctx context.Context) error {
			if c, ok := p.(io.Closer); ok {
				return c.Close()
			}
			return nil
		},
	}
}

// AuditHook closes the audit trail last so it records everything before it.
func AuditHook(closeFn func() error) Hook {
	return Hook{
		Name:     "audit-logger",
		Priority: 95,
		Fn: func(ctx context.Context) error {
			return closeFn()
		},
	}
}
