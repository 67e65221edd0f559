package actorutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

// SafeBackgroundTask runs fn outside the actor and delivers its result as a
// message. Panics and timeouts become errors. The context handed to fn is
// cancelled when the timeout fires.
type SafeBackgroundTask[T any] struct {
	root      *actor.RootContext
	fn        func(ctx context.Context) (*T, error)
	timeout   *time.Duration
	onError   func(error)
	recover   func(error) T
	onSuccess func(T)
}

func NewBackgroundTask[T any](ctx actor.Context, fn func(ctx context.Context) (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		root: ctx.ActorSystem().Root,
		fn:   fn,
	}
}

func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = &timeout
	return t
}

// OnError observes every failure, including the ones Recover turns into a
// value.
func (t *SafeBackgroundTask[T]) OnError(fn func(error)) *SafeBackgroundTask[T] {
	t.onError = fn
	return t
}

func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

func (t *SafeBackgroundTask[T]) OnSuccess(fn func(T)) *SafeBackgroundTask[T] {
	t.onSuccess = fn
	return t
}

// PipeTo runs the task in its own goroutine and sends the (possibly
// recovered) result to pid.
func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	root := t.root
	t.onSuccess = func(value T) {
		root.Send(pid, value)
	}
	go t.Run()
}

// Run blocks until the task is done.
func (t *SafeBackgroundTask[T]) Run() {
	taskCtx, cancel := context.WithCancel(context.Background())
	if t.timeout != nil {
		taskCtx, cancel = context.WithTimeout(context.Background(), *t.timeout)
	}
	defer cancel()

	bg := io.Eval(func() (value T, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("background task panic: %v", r)
			}
		}()
		res, err := t.fn(taskCtx)
		if err != nil {
			return value, err
		}
		if res == nil {
			return value, errors.New("result is nil")
		}
		return *res, nil
	})
	if t.timeout != nil {
		bg = io.WithTimeout[T](*t.timeout)(bg)
	}
	result := io.RunSync(bg)

	finalValue := result.Value
	if result.Error != nil {
		if t.onError != nil {
			t.onError(result.Error)
		}
		if t.recover == nil {
			return
		}
		finalValue = t.recover(result.Error)
	}

	if t.onSuccess != nil {
		t.onSuccess(finalValue)
	}
}
