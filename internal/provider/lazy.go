package provider

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

var errEngineClosed = errors.New("engine closed")

// BuildFunc constructs and warms a concrete engine.
type BuildFunc func(ctx context.Context) (Engine, error)

// Lazy holds the single process-wide engine. It is built on first use (or on
// Warmup) and a failed build is retried by the next caller. Concurrent callers
// share one build; mu only guards the fields and is never held across engine calls.
type Lazy struct {
	mu     sync.Mutex
	builds singleflight.Group
	build  BuildFunc
	model  string
	engine Engine
	closed bool
}

func NewLazy(model string, build BuildFunc) *Lazy {
	return &Lazy{build: build, model: model}
}

func (l *Lazy) current() (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, domain.ErrEngineUnavailable.WithError(errEngineClosed)
	}
	return l.engine, nil
}

func (l *Lazy) get(ctx context.Context) (Engine, error) {
	if e, err := l.current(); err != nil || e != nil {
		return e, err
	}

	v, err, _ := l.builds.Do("build", func() (interface{}, error) {
		if e, err := l.current(); err != nil || e != nil {
			return e, err
		}

		e, err := l.build(ctx)
		if err != nil {
			return nil, domain.ErrEngineUnavailable.WithError(err)
		}
		if err := e.Warmup(ctx); err != nil {
			_ = e.Close()
			return nil, domain.ErrEngineUnavailable.WithError(err)
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed {
			_ = e.Close()
			return nil, domain.ErrEngineUnavailable.WithError(errEngineClosed)
		}
		l.engine = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Engine), nil
}

func (l *Lazy) Represent(ctx context.Context, image []byte) ([]DetectedFace, error) {
	e, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return e.Represent(ctx, image)
}

// Warmup forces initialization; used at process start.
func (l *Lazy) Warmup(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

// Ready reports whether the engine has been built.
func (l *Lazy) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil && !l.closed
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.engine == nil {
		return nil
	}
	err := l.engine.Close()
	l.engine = nil
	return err
}

func (l *Lazy) Model() string {
	return l.model
}

var _ Engine = (*Lazy)(nil)
