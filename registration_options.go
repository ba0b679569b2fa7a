package ioc

// RegistrationOption configures a ServiceRegistration before it is handed
// to a Register* call — the same functional-options idiom the teacher
// applies to its Factory via FactoryConfig, carried over to the
// ServiceRegistration this module builds registrations around instead.
type RegistrationOption func(*ServiceRegistration)

// WithName sets the ServiceName distinguishing this registration from
// other registrations of the same ServiceIdentity (spec.md §3).
func WithName(name ServiceName) RegistrationOption {
	return func(r *ServiceRegistration) { r.ServiceName = name }
}

// WithLifetime overrides the registration's lifetime strategy (spec.md
// §4.4). Registrations default to Transient when this option is omitted.
func WithLifetime(l Lifetime) RegistrationOption {
	return func(r *ServiceRegistration) { r.Lifetime = l }
}

// Options composes several RegistrationOption values into one, grounded on
// the teacher's own Stereotype helper in the now-removed factory_config.go
// — a reusable bundle like `var Controller = ioc.Options(ioc.WithLifetime(ioc.PerRequest{}))`.
func Options(opts ...RegistrationOption) RegistrationOption {
	return func(r *ServiceRegistration) {
		for _, opt := range opts {
			opt(r)
		}
	}
}

// applyOptions runs every option against a fresh registration, the
// preparation step container.go's Register* helpers run before handing the
// result to Registry.Register.
func applyOptions(r *ServiceRegistration, opts []RegistrationOption) *ServiceRegistration {
	for _, opt := range opts {
		opt(r)
	}
	return r
}
