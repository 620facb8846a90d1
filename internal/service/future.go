package service

import "context"

// Future 异步操作的结果
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go 在后台执行 fn 并返回 Future
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn(ctx)
	}()
	return f
}

// Done 操作完成时关闭
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await 等待结果,ctx 结束时提前返回 ctx.Err()
// 提前返回不会取消后台操作
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
