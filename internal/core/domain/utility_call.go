package domain

// Fingerprint is the stable cache key of a utility call.
type Fingerprint string

// String returns the fingerprint as a string.
func (f Fingerprint) String() string {
	return string(f)
}

// UtilityCall is the unit of cacheable work: a subset evaluated by an identified utility.
type UtilityCall struct {
	Subset    Subset
	UtilityID string
	// Config holds extra parameters that change the utility's output.
	Config map[string]string
}
