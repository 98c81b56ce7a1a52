package build

// Hooks lets an embedding observe and gate output emission without affecting
// validation. BeforeOutput may veto emission for the current pass; its error
// aborts the pass. AfterOutput runs for side effects only.
type Hooks interface {
	BeforeOutput(aggregate Aggregate) (proceed bool, err error)
	AfterOutput(aggregate Aggregate) error
}

// NopHooks is the default "always proceed" implementation.
type NopHooks struct{}

// BeforeOutput always proceeds.
func (NopHooks) BeforeOutput(Aggregate) (bool, error) { return true, nil }

// AfterOutput does nothing.
func (NopHooks) AfterOutput(Aggregate) error { return nil }
