package instance

// SetBuilderOption is a functional option for configuring a Set during construction.
type SetBuilderOption func(*Set)

// WithCapacity preallocates room for n instances.
//
// Parameters:
//   - n: the number of instances to reserve space for
//
// Returns:
//   - SetBuilderOption: a function that applies the capacity to a set
func WithCapacity(n int) SetBuilderOption {
	return func(s *Set) {
		s.instances = make([]Instance, 0, n)
	}
}

// WithInstances seeds the set with a copy of the given instances.
//
// Parameters:
//   - instances: the initial instances
//
// Returns:
//   - SetBuilderOption: a function that appends the instances to a set
func WithInstances(instances ...Instance) SetBuilderOption {
	return func(s *Set) {
		s.instances = append(s.instances, instances...)
	}
}
