// Package coordinator runs the reconciliation channels of one bridge.
//
// The coordinator owns the lifecycle of every configured channel and of the
// optional eviction queue:
//
//   - Start connects each channel, which schedules its first tick immediately
//   - Eviction rounds run on the same scheduler at the configured round interval
//   - Stop closes every channel and cancels the pending round
//
// Channels tick independently. A failing channel never affects another one;
// its failures are visible in its status and metrics only.
//
// # Usage Example
//
//	coord := coordinator.New(channels, clock.NewScheduler(nil), cfg,
//	    coordinator.WithEvictionQueue(queue))
//
//	go coord.Start(ctx)
//
//	// ... run server ...
//
//	coord.Stop()
package coordinator
