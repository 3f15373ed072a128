package broker

import (
	"context"

	"github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/internal/eventbus"
	logx "github.com/BukhosiMoyo/Yiba-Verified-Platform-sub002/pkg/logx"
)

const subscribeBuffer = 256

// pump feeds events of the given types to handle until ctx ends or the bus
// closes the subscription. Handler errors are logged, never returned.
func pump(ctx context.Context, bus eventbus.Bus, log logx.Logger, handle func(context.Context, eventbus.Event) error, types ...string) error {
	events, unsub := bus.Subscribe(subscribeBuffer, types...)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := handle(ctx, e); err != nil {
				log.Warn("forward failed", logx.String("event", e.Type), logx.Err(err))
			}
		}
	}
}
