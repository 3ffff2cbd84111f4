package idauthority

// IDBlockSizer supplies the block size and the exclusive upper bound of the
// IDs of each namespace.
type IDBlockSizer interface {
	BlockSize(namespace string) int64
	IDUpperBound(namespace string) int64
}

// Limits are the sizing parameters of one namespace.
type Limits struct {
	BlockSize  int64
	UpperBound int64
}

// StaticSizer is an IDBlockSizer with fixed defaults and per namespace overrides.
// It must not be modified once it is in use.
type StaticSizer struct {
	Default   Limits
	Overrides map[string]Limits
}

// NewStaticSizer creates a sizer that uses the given limits for every namespace.
func NewStaticSizer(blockSize, upperBound int64) *StaticSizer {
	return &StaticSizer{
		Default:   Limits{BlockSize: blockSize, UpperBound: upperBound},
		Overrides: make(map[string]Limits),
	}
}

// With sets the limits of a single namespace and returns the sizer.
func (s *StaticSizer) With(namespace string, blockSize, upperBound int64) *StaticSizer {
	s.Overrides[namespace] = Limits{BlockSize: blockSize, UpperBound: upperBound}
	return s
}

func (s *StaticSizer) limits(namespace string) Limits {
	if l, ok := s.Overrides[namespace]; ok {
		return l
	}
	return s.Default
}

func (s *StaticSizer) BlockSize(namespace string) int64 {
	return s.limits(namespace).BlockSize
}

func (s *StaticSizer) IDUpperBound(namespace string) int64 {
	return s.limits(namespace).UpperBound
}
