package control

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestChannelPairAskRoundTrip(t *testing.T) {
	cp := NewChannelPair[string, int](1)
	defer cp.Close()

	go func() {
		req := <-cp.Req
		if req != "how many" {
			t.Errorf("request = %q", req)
		}
		cp.Resp <- 42
	}()

	got, err := Ask(context.Background(), cp, "how many", time.Second)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Ask() = %d, want 42", got)
	}
}

func TestChannelPairAskTimesOutWithoutConsumer(t *testing.T) {
	cp := NewChannelPair[string, int](0)
	defer cp.Close()

	_, err := Ask(context.Background(), cp, "anyone there", 20*time.Millisecond)
	if err == nil {
		t.Fatal("Ask() error = nil, want timeout")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("error = %v, want timeout", err)
	}
}

func TestChannelPairAskHonorsContext(t *testing.T) {
	cp := NewChannelPair[string, int](0)
	defer cp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Ask(ctx, cp, "late", time.Second); err != context.Canceled {
		t.Errorf("Ask() error = %v, want context.Canceled", err)
	}
}

func TestChannelPairCloseIsSafe(t *testing.T) {
	var nilPair *ChannelPair[int, int]
	nilPair.Close()

	cp := NewChannelPair[int, int](1)
	if !cp.IsInitialized() {
		t.Error("IsInitialized() = false for fresh pair")
	}
	cp.Close()
	if cp.IsInitialized() {
		t.Error("IsInitialized() = true after Close")
	}

	if _, err := Ask(context.Background(), cp, 1, time.Second); err == nil {
		t.Error("Ask() on closed pair error = nil")
	}
}
