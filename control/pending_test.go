package control

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func TestPendingResolveDeliversOutcome(t *testing.T) {
	table := newPendingTable()

	ch, err := table.register("sdk-0")
	if err != nil {
		t.Fatalf("register() error = %v", err)
	}

	if !table.resolve("sdk-0", outcome{result: json.RawMessage(`{"ok":true}`)}) {
		t.Fatal("resolve() = false, want true")
	}

	out := <-ch
	if out.err != nil {
		t.Fatalf("outcome error = %v", out.err)
	}
	if string(out.result) != `{"ok":true}` {
		t.Errorf("result = %s", out.result)
	}
	if table.size() != 0 {
		t.Errorf("size = %d, want 0", table.size())
	}
}

func TestPendingResolveUnknownIDIsNoOp(t *testing.T) {
	table := newPendingTable()

	ch, err := table.register("sdk-0")
	if err != nil {
		t.Fatalf("register() error = %v", err)
	}

	if table.resolve("never-registered", outcome{}) {
		t.Error("resolve(unknown) = true, want false")
	}

	// The existing waiter must be untouched.
	if table.size() != 1 {
		t.Errorf("size = %d, want 1", table.size())
	}
	select {
	case <-ch:
		t.Error("waiter resolved by unknown id")
	default:
	}
}

func TestPendingFailAllDrainsEveryWaiter(t *testing.T) {
	table := newPendingTable()

	const n = 5
	chans := make([]<-chan outcome, n)
	for i := range chans {
		ch, err := table.register(string(rune('a' + i)))
		if err != nil {
			t.Fatalf("register() error = %v", err)
		}
		chans[i] = ch
	}

	table.failAll(ErrConnectionClosed)

	for i, ch := range chans {
		out := <-ch
		if !errors.Is(out.err, ErrConnectionClosed) {
			t.Errorf("waiter %d error = %v, want ErrConnectionClosed", i, out.err)
		}
	}
	if table.size() != 0 {
		t.Errorf("size = %d, want 0", table.size())
	}
}

func TestPendingRegisterAfterFailAllFailsFast(t *testing.T) {
	table := newPendingTable()
	table.failAll(ErrConnectionClosed)

	if _, err := table.register("late"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("register after failAll error = %v, want ErrConnectionClosed", err)
	}
}

func TestPendingConcurrentRegisterAndFailAll(t *testing.T) {
	// A request sent at the exact moment of shutdown either completes via
	// failAll or fails to register; it never hangs.
	for iter := 0; iter < 50; iter++ {
		table := newPendingTable()
		var wg sync.WaitGroup

		results := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				ch, err := table.register(string(rune('0' + n)))
				if err != nil {
					results <- err
					return
				}
				out := <-ch
				results <- out.err
			}(i)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			table.failAll(ErrConnectionClosed)
		}()

		wg.Wait()
		close(results)
		for err := range results {
			if !errors.Is(err, ErrConnectionClosed) {
				t.Fatalf("waiter error = %v, want ErrConnectionClosed", err)
			}
		}
	}
}

func TestPendingCancelRemovesEntrySilently(t *testing.T) {
	table := newPendingTable()
	if _, err := table.register("sdk-0"); err != nil {
		t.Fatalf("register() error = %v", err)
	}

	table.cancel("sdk-0")

	if table.size() != 0 {
		t.Errorf("size = %d, want 0", table.size())
	}
	if table.resolve("sdk-0", outcome{}) {
		t.Error("resolve after cancel = true, want false")
	}
}
