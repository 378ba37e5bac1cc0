package store

// Capability identifies an optional channel feature. Callers probe for a
// capability instead of type-sniffing driver internals; a channel that lacks
// one returns an explicit error rather than degrading silently.
type Capability string

const (
	CapabilityBatchWrite        Capability = "batch_write"
	CapabilityServerPreparation Capability = "server_side_preparation"
	CapabilityExplainAnalyze    Capability = "explain_analyze"
)

// CapabilitySet expresses the capabilities a channel supports.
type CapabilitySet map[Capability]bool

// Supports reports whether the set contains the capability.
func (s CapabilitySet) Supports(c Capability) bool {
	if s == nil {
		return false
	}
	return s[c]
}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// Capable is implemented by channels that advertise their capability set.
type Capable interface {
	Capabilities() CapabilitySet
}

// Supports probes a channel for a capability. Channels that do not implement
// Capable support nothing beyond the base Channel contract.
func Supports(ch Channel, c Capability) bool {
	capable, ok := ch.(Capable)
	if !ok {
		return false
	}
	return capable.Capabilities().Supports(c)
}
