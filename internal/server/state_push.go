package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sanbist/papertrader/internal/modules/portfolio"
)

// stateMessageType marks pushed portfolio state on both streams
const stateMessageType = "STATE"

// StateSource is the portfolio read side the event streams push from
type StateSource interface {
	Watch(userID string) (<-chan portfolio.StateChange, func())
	GetValuation(ctx context.Context, userID string) (portfolio.ValuedState, error)
}

// watchState subscribes to the caller's state changes when the request asks
// for ?state=true. Otherwise the channel is nil and never fires in a select.
func watchState(src StateSource, r *http.Request, userID string) (<-chan portfolio.StateChange, func()) {
	enabled, _ := strconv.ParseBool(r.URL.Query().Get("state"))
	if !enabled || src == nil {
		return nil, func() {}
	}
	return src.Watch(userID)
}
