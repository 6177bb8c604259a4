package inbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/livinlefevreloca/fastadapter/internal/testutil"
)

func TestInbox_SendReceive(t *testing.T) {
	ib := New[int](4, time.Second, testutil.NewTestLogger().Logger())

	for i := 0; i < 3; i++ {
		if !ib.Send(i) {
			t.Fatalf("send %d failed", i)
		}
	}

	for i := 0; i < 3; i++ {
		got, ok := ib.Receive()
		if !ok || got != i {
			t.Errorf("receive %d: got %d, %v", i, got, ok)
		}
	}

	stats := ib.GetStats()
	if stats.TotalSent != 3 || stats.TotalReceived != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.MaxDepthSeen != 3 {
		t.Errorf("expected max depth 3, got %d", stats.MaxDepthSeen)
	}
}

func TestInbox_SendTimeout(t *testing.T) {
	logger := testutil.NewTestLogger()
	ib := New[int](1, 10*time.Millisecond, logger.Logger())

	ib.Send(1)
	if ib.Send(2) {
		t.Fatal("send to full inbox should time out")
	}

	if ib.GetStats().TimeoutCount != 1 {
		t.Errorf("expected 1 timeout, got %d", ib.GetStats().TimeoutCount)
	}
	if !logger.HasWarning() {
		t.Error("expected timeout warning")
	}
}

func TestInbox_SendContextCancelled(t *testing.T) {
	ib := New[int](1, time.Hour, testutil.NewTestLogger().Logger())
	ib.Send(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ib.SendContext(ctx, 2) {
		t.Error("send with cancelled context should fail")
	}
}

func TestInbox_TrySendFull(t *testing.T) {
	ib := New[string](1, time.Second, testutil.NewTestLogger().Logger())

	if !ib.TrySend("a") {
		t.Fatal("first try send should succeed")
	}
	if ib.TrySend("b") {
		t.Fatal("try send to full inbox should fail")
	}
	if ib.GetStats().DroppedCount != 1 {
		t.Errorf("expected 1 dropped, got %d", ib.GetStats().DroppedCount)
	}
}

func TestInbox_CloseDrainsThenStops(t *testing.T) {
	ib := New[int](4, time.Second, testutil.NewTestLogger().Logger())
	ib.Send(7)
	ib.Close()
	ib.Close()

	if ib.Send(8) || ib.TrySend(9) {
		t.Error("send after close should fail")
	}

	got, ok := ib.Receive()
	if !ok || got != 7 {
		t.Errorf("expected buffered message 7, got %d, %v", got, ok)
	}
	if _, ok := ib.Receive(); ok {
		t.Error("receive on drained closed inbox should report false")
	}
}

func TestInbox_ConcurrentSendAndClose(t *testing.T) {
	ib := New[int](1000, time.Second, testutil.NewTestLogger().Logger())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ib.TrySend(i)
			}
		}()
	}

	ib.Close()
	wg.Wait()

	received := 0
	for range ib.C() {
		ib.MarkReceived()
		received++
	}

	stats := ib.GetStats()
	if int64(received) != stats.TotalSent {
		t.Errorf("received %d, sent %d", received, stats.TotalSent)
	}
	if stats.TotalSent+stats.DroppedCount != 800 {
		t.Errorf("sent %d + dropped %d != 800", stats.TotalSent, stats.DroppedCount)
	}
}
