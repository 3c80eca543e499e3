// Package dataset binds a request.Dispatcher to one endpoint and layers
// call collapsing, a bounded response history and an optional persistent
// mirror on top of it.
//
// # Modes
//
// Without Cache, a compatible endpoint (Strict false) shares the pending
// result with every call whose payload is unchanged since the previous call;
// a strict endpoint dispatches on every call.
//
// With Cache, successful responses are recorded per payload key. The
// Backward preference answers from the history when it can; Forward always
// dispatches and still records the response.
//
// # Basic Usage
//
//	list, err := dataset.Bind(dispatcher, "/list", dataset.Config{
//		Cache:   true,
//		Persist: dataset.PersistSlice(-20),
//		Store:   store.NewMemory(),
//	})
//	if err != nil {
//		return err
//	}
//
//	res, err := list.Fetch(ctx, &request.Request{
//		Payload: &request.Payload{Body: map[string]any{"page": 1}},
//	})
//
// The endpoint mirror is stored under StorageKey(url) as a JSON list of
// entries and is rewritten as a whole on every recorded response.
package dataset
