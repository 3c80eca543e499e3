// Package request dispatches envelope-based API calls.
//
// A Dispatcher sends a JSON payload to the backend and classifies the
// response envelope by its result code:
//
// - Codes 10000 and 20000 are successes; the envelope is returned
// - Any other code is a *BusinessError carrying the translated message
// - Non-2xx statuses, network failures and cancellations are a *TransportError
// - Identical in-flight requests are ignored or aborted per DuplicatePolicy
// - A busy indicator or scope mask is shown while requests are pending
// - In development, URLs are routed through a mock path prefix and a failed
//   request is retried once against the mock backend
//
// # Basic Usage
//
//	d, err := request.New(request.DefaultConfig("https://app.example.com"))
//	if err != nil {
//		return err
//	}
//
//	env, err := d.Post(ctx, "/login", &request.Payload{
//		Body: map[string]any{"user": "alice", "password": "secret"},
//	})
//	var berr *request.BusinessError
//	switch {
//	case request.IsIgnored(err):
//		// Same login already in flight
//	case errors.As(err, &berr):
//		// berr.Message has already been alerted
//	case err != nil:
//		return err
//	}
//
// # Duplicate Handling
//
// Two requests are identical when their resolved URLs match and, unless
// WithoutDataComparison is given, their canonical payloads match too:
//
//	d.Post(ctx, "/search", p)                                          // sent
//	d.Post(ctx, "/search", p)                                          // ErrIgnored
//	d.Post(ctx, "/search", p, request.WithDuplicatePolicy(request.Abort)) // first aborted
//
// Every settled request emits EventResponse on the configured hook bus.
package request
