package dataset

import (
	"github.com/Sternrassler/ya-request/pkg/request"
)

type callOptions struct {
	prefer      Prefer
	transforms  []Transform
	requestOpts []request.Option
}

// CallOption configures a single Fetch call.
type CallOption func(*callOptions)

func resolveCallOptions(prefer Prefer, opts []CallOption) callOptions {
	co := callOptions{prefer: prefer}
	for _, opt := range opts {
		if opt != nil {
			opt(&co)
		}
	}
	return co
}

// WithPrefer overrides the endpoint's replay preference for one call.
func WithPrefer(p Prefer) CallOption {
	return func(co *callOptions) {
		if p == Backward || p == Forward {
			co.prefer = p
		}
	}
}

// WithTransform appends transforms that run after the endpoint's own.
func WithTransform(fns ...Transform) CallOption {
	return func(co *callOptions) {
		co.transforms = append(co.transforms, fns...)
	}
}

// WithRequestOptions passes options through to the dispatcher.
func WithRequestOptions(opts ...request.Option) CallOption {
	return func(co *callOptions) {
		co.requestOpts = append(co.requestOpts, opts...)
	}
}
