package control

import (
	"context"
	"fmt"
	"time"
)

// ChannelPair groups a request and response channel for one interactive
// exchange, such as surfacing a peer's permission check to a UI.
type ChannelPair[Req, Resp any] struct {
	Req  chan Req
	Resp chan Resp
}

// NewChannelPair creates a ChannelPair with the given buffer size.
func NewChannelPair[Req, Resp any](bufferSize int) *ChannelPair[Req, Resp] {
	return &ChannelPair[Req, Resp]{
		Req:  make(chan Req, bufferSize),
		Resp: make(chan Resp, bufferSize),
	}
}

// Close closes both channels. Safe to call on nil ChannelPair.
func (cp *ChannelPair[Req, Resp]) Close() {
	if cp == nil {
		return
	}
	if cp.Req != nil {
		close(cp.Req)
		cp.Req = nil
	}
	if cp.Resp != nil {
		close(cp.Resp)
		cp.Resp = nil
	}
}

// IsInitialized returns true if both channels are non-nil.
func (cp *ChannelPair[Req, Resp]) IsInitialized() bool {
	return cp != nil && cp.Req != nil && cp.Resp != nil
}

// Ask sends req on the pair and waits for the consumer's reply. Both the
// send and the receive are bounded by timeout so an unattended consumer
// cannot wedge the reader loop that asked.
func Ask[Req, Resp any](ctx context.Context, cp *ChannelPair[Req, Resp], req Req, timeout time.Duration) (Resp, error) {
	var zero Resp
	if !cp.IsInitialized() {
		return zero, fmt.Errorf("channel pair not initialized")
	}

	sendTimer := time.NewTimer(timeout)
	defer sendTimer.Stop()
	select {
	case cp.Req <- req:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-sendTimer.C:
		return zero, fmt.Errorf("timeout sending request to consumer")
	}

	recvTimer := time.NewTimer(timeout)
	defer recvTimer.Stop()
	select {
	case resp, ok := <-cp.Resp:
		if !ok {
			return zero, fmt.Errorf("response channel closed")
		}
		return resp, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-recvTimer.C:
		return zero, fmt.Errorf("timeout waiting for consumer response")
	}
}
