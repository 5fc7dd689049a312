package lazy

// Option adjusts a single Module or Callable request.
type Option func(*request)

type request struct {
	mode    BindingMode
	strings ErrorStrings
}

func newRequest(name string, opts []Option) request {
	req := request{mode: Leaf}
	for _, opt := range opts {
		if opt != nil {
			opt(&req)
		}
	}
	req.strings = req.strings.withDefaults(name)
	return req
}

// WithMode selects the segment the request hands back.
func WithMode(mode BindingMode) Option {
	return func(r *request) {
		r.mode = mode
	}
}

// WithErrorStrings replaces the load failure strings wholesale.
func WithErrorStrings(s ErrorStrings) Option {
	return func(r *request) {
		r.strings = s
	}
}

func WithMessage(message string) Option {
	return func(r *request) {
		r.strings.Message = message
	}
}

func WithCaller(caller string) Option {
	return func(r *request) {
		r.strings.Caller = caller
	}
}

func WithInstallName(name string) Option {
	return func(r *request) {
		r.strings.InstallName = name
	}
}
