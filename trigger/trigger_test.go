package trigger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/trigger"
)

func TestAdd_RejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := trigger.NewScheduler(func(_ context.Context, _ string) error { return nil })
	if err := s.Add("product_import", "not a cron expression"); err == nil {
		t.Fatal("bad schedule accepted")
	}
	if err := s.Add("", "@every 1m"); err == nil {
		t.Fatal("empty kind accepted")
	}
	if err := s.Add("product_import", "*/5 * * * *"); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}

func TestFire_RunsTickOnDemand(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var fired []string
	s := trigger.NewScheduler(func(_ context.Context, kind string) error {
		mu.Lock()
		fired = append(fired, kind)
		mu.Unlock()
		return nil
	})

	if err := s.Fire(context.Background(), "price_update"); err != nil {
		t.Fatalf("Fire: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != "price_update" {
		t.Fatalf("fired = %v, want one price_update tick", fired)
	}
}

func TestStart_FiresDueEntries(t *testing.T) {
	t.Parallel()

	ch := make(chan string, 16)
	s := trigger.NewScheduler(
		func(_ context.Context, kind string) error {
			ch <- kind
			return nil
		},
		trigger.WithResolution(5*time.Millisecond),
	)
	if err := s.Add("product_import", "@every 10ms"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case kind := <-ch:
			if kind != "product_import" {
				t.Fatalf("tick kind = %q", kind)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d never fired", i)
		}
	}
}

func TestRemove_StopsFiring(t *testing.T) {
	t.Parallel()

	s := trigger.NewScheduler(func(_ context.Context, _ string) error { return nil })
	if err := s.Add("product_import", "@every 1m"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Remove("product_import")
	if kinds := s.Kinds(); len(kinds) != 0 {
		t.Fatalf("kinds = %v, want empty", kinds)
	}
}
