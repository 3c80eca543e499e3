package request

// DuplicatePolicy decides what happens to a request identical to one in flight.
type DuplicatePolicy string

const (
	// Ignore rejects the new request with ErrIgnored while the first is pending.
	Ignore DuplicatePolicy = "ignore"

	// Abort cancels the earlier request in favor of the new one.
	Abort DuplicatePolicy = "abort"

	// None performs no deduplication.
	None DuplicatePolicy = "none"
)

// MaskScope is a UI region that shows its own busy mask. When Done is
// closed, requests masking the scope are aborted.
type MaskScope interface {
	ShowMask()
	HideMask()
	Done() <-chan struct{}
}

// Options are the per-call settings of Dispatch.
type Options struct {
	// GlobalMask shows the Indicator while the request is in flight.
	GlobalMask bool

	// Scope, when set, is masked instead of the global indicator.
	Scope MaskScope

	DuplicatePolicy DuplicatePolicy

	// CompareByData makes two requests duplicates only when their payloads are equal too.
	CompareByData bool

	// URLPrefixing prepends the configured API domain and prefix.
	URLPrefixing bool

	// SilentWhen suppresses the automatic alert when it returns true.
	SilentWhen func(env *Envelope, err error) bool

	// ForceMock routes the request to the mock backend.
	ForceMock bool

	// RawCallback delivers the raw body through OnCallback without classification.
	RawCallback bool

	// FailureCallbacks invokes OnError (or OnCallback) on transport failures.
	FailureCallbacks bool

	// retryAttempt marks the internal mock fallback request.
	retryAttempt bool
}

// Option configures a single Dispatch call.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		GlobalMask:      true,
		DuplicatePolicy: Ignore,
		CompareByData:   true,
		URLPrefixing:    true,
	}
}

func resolveOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.DuplicatePolicy == "" {
		o.DuplicatePolicy = Ignore
	}
	return o
}

// WithMask masks scope instead of showing the global indicator.
func WithMask(scope MaskScope) Option {
	return func(o *Options) {
		o.Scope = scope
		o.GlobalMask = scope == nil
	}
}

// WithoutMask disables every busy indicator for the call.
func WithoutMask() Option {
	return func(o *Options) {
		o.GlobalMask = false
		o.Scope = nil
	}
}

// WithDuplicatePolicy sets the duplicate policy (default Ignore).
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(o *Options) {
		o.DuplicatePolicy = p
	}
}

// WithoutDataComparison treats every in-flight request to the same URL as a duplicate.
func WithoutDataComparison() Option {
	return func(o *Options) {
		o.CompareByData = false
	}
}

// WithoutURLPrefix sends the URL as given, without domain or prefix.
func WithoutURLPrefix() Option {
	return func(o *Options) {
		o.URLPrefixing = false
	}
}

// Silent suppresses the automatic error alert.
func Silent() Option {
	return SilentWhen(func(*Envelope, error) bool { return true })
}

// SilentWhen suppresses the alert when fn returns true. fn receives the
// envelope for business errors and the error for transport failures.
func SilentWhen(fn func(env *Envelope, err error) bool) Option {
	return func(o *Options) {
		o.SilentWhen = fn
	}
}

// WithForceMock routes the request to the mock backend in development.
func WithForceMock() Option {
	return func(o *Options) {
		o.ForceMock = true
	}
}

// WithRawCallback delivers the raw response through Request.OnCallback.
func WithRawCallback() Option {
	return func(o *Options) {
		o.RawCallback = true
	}
}

// WithFailureCallbacks invokes the error callbacks for transport failures too.
func WithFailureCallbacks() Option {
	return func(o *Options) {
		o.FailureCallbacks = true
	}
}

func asRetryAttempt() Option {
	return func(o *Options) {
		o.retryAttempt = true
		o.ForceMock = true
		o.SilentWhen = func(*Envelope, error) bool { return true }
	}
}

func (o Options) silent(env *Envelope, err error) bool {
	return o.SilentWhen != nil && o.SilentWhen(env, err)
}
