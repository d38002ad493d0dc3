package agent

import (
	"context"
	"time"

	"github.com/zhubert/agentmux/control"
)

// DefaultPermissionTimeout bounds how long a channel-backed permission
// prompt waits for a human answer before the request fails.
const DefaultPermissionTimeout = 5 * time.Minute

// ChannelPermissionHandler surfaces permission requests on a channel pair
// so interactive consumers (a TUI, a web frontend) can answer prompts
// without implementing PermissionHandler themselves. Requests arrive on
// Pair.Req; the consumer sends its verdict on Pair.Resp.
type ChannelPermissionHandler struct {
	Pair    *control.ChannelPair[*PermissionRequest, *PermissionResult]
	Timeout time.Duration
}

// NewChannelPermissionHandler creates a handler with a single-slot pair
// and the default timeout.
func NewChannelPermissionHandler() *ChannelPermissionHandler {
	return &ChannelPermissionHandler{
		Pair:    control.NewChannelPair[*PermissionRequest, *PermissionResult](1),
		Timeout: DefaultPermissionTimeout,
	}
}

// Handle implements PermissionHandler. A timeout or closed pair returns
// an error, which the session reports to the peer as a failed request.
func (h *ChannelPermissionHandler) Handle(ctx context.Context, req *PermissionRequest) (*PermissionResult, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultPermissionTimeout
	}
	return control.Ask(ctx, h.Pair, req, timeout)
}

// Close releases the pair. Pending Handle calls fail.
func (h *ChannelPermissionHandler) Close() {
	h.Pair.Close()
}
