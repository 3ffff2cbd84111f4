// Package timestamp provides the time source used by the lock and ID
// allocation packages.
//
// A Provider has a fixed resolution (nano, micro or milli) and returns
// strictly increasing instants truncated to that resolution. Lock claims
// encode instants as integer ticks since the Unix epoch (see Ticks and Time),
// so every process sharing a backend must use the same unit.
//
// Sleeping always goes through the provider and honours context cancellation:
//
//	times := timestamp.NewProvider(timestamp.Micro)
//	now, err := times.SleepUntil(ctx, writeTs.Add(wait))
//	if err != nil {
//		return err // ctx.Err()
//	}
//
// ManualProvider is a deterministic virtual clock for tests.
package timestamp
