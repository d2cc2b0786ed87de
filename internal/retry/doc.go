// Package retry runs an operation until it succeeds, the attempt budget is
// spent, or the context is cancelled.
//
// A Policy bundles the attempt cap and the backoff between attempts so call
// sites differ only in configuration. The network join uses a bounded policy
// and gives control back to the caller when it runs out; the broker session
// uses an unbounded one and blocks until the broker answers.
//
// Usage:
//
//	join := retry.Policy{
//	    MaxAttempts: 10,
//	    Backoff:     retry.Constant(time.Second),
//	    OnFailure:   func(int, error) { console.Print(".") },
//	}
//	attempts, err := join.Do(ctx, func(ctx context.Context) error {
//	    return link.Join(ctx, ssid, pass)
//	})
package retry
