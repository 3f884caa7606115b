package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/middleware"
)

func testChunk() *chunk.Chunk {
	return &chunk.Chunk{
		Entity:     batch.NewEntity(),
		ID:         id.NewChunkID(),
		JobID:      id.NewJobID(),
		Ordinal:    0,
		Start:      0,
		End:        50,
		Status:     chunk.StatusProcessing,
		MaxRetries: 3,
	}
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *chunk.Chunk, next middleware.Handler) error {
			order = append(order, name+":before")
			err := next(ctx)
			order = append(order, name+":after")
			return err
		}
	}

	chain := middleware.Chain(mw("outer"), mw("inner"))
	err := chain(context.Background(), testChunk(), func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := "outer:before,inner:before,handler,inner:after,outer:after"
	if got := strings.Join(order, ","); got != want {
		t.Fatalf("order = %s, want %s", got, want)
	}
}

func TestChain_Empty(t *testing.T) {
	t.Parallel()

	called := false
	chain := middleware.Chain()
	err := chain(context.Background(), testChunk(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("empty chain: called=%v err=%v", called, err)
	}
}

func TestChain_ErrorPropagates(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("processor blew up")
	chain := middleware.Chain(middleware.Logging(slog.Default()))
	err := chain(context.Background(), testChunk(), func(_ context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	t.Parallel()

	chain := middleware.Chain(middleware.Recover(slog.Default()))
	err := chain(context.Background(), testChunk(), func(_ context.Context) error {
		panic("nil map write")
	})
	if err == nil {
		t.Fatal("panic not converted to error")
	}
	if !strings.Contains(err.Error(), "panic") {
		t.Fatalf("err = %v, want panic mention", err)
	}
}

func TestTimeout_CancelsSlowHandler(t *testing.T) {
	t.Parallel()

	chain := middleware.Chain(middleware.Timeout(10 * time.Millisecond))
	err := chain(context.Background(), testChunk(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestTimeout_ZeroIsPassThrough(t *testing.T) {
	t.Parallel()

	chain := middleware.Chain(middleware.Timeout(0))
	err := chain(context.Background(), testChunk(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("zero timeout should not set a deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
}
