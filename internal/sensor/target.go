package sensor

import "github.com/srg/witctl/internal/devicecache"

// AnyWIT is the wildcard target spelling accepted from the command surface.
const AnyWIT = "*"

type targetKind int

const (
	targetNone targetKind = iota
	targetAny
	targetExact
)

// Target is a pending autoconnect target: none, any WIT device, or an exact
// identifier or address.
type Target struct {
	kind  targetKind
	value string
}

// NoTarget is the empty target.
func NoTarget() Target { return Target{} }

// AnyTarget matches any device classified as WIT.
func AnyTarget() Target { return Target{kind: targetAny} }

// ExactTarget matches a device by identifier or address.
func ExactTarget(identifierOrAddress string) Target {
	return Target{kind: targetExact, value: identifierOrAddress}
}

// ParseTarget maps "" and "*" to AnyTarget and everything else to ExactTarget.
func ParseTarget(s string) Target {
	if s == "" || s == AnyWIT {
		return AnyTarget()
	}
	return ExactTarget(s)
}

// IsSet reports whether the target is not None.
func (t Target) IsSet() bool { return t.kind != targetNone }

// IsAny reports whether the target is the WIT wildcard.
func (t Target) IsAny() bool { return t.kind == targetAny }

// Matches reports whether a discovered device satisfies the target.
func (t Target) Matches(rec devicecache.Record) bool {
	switch t.kind {
	case targetAny:
		return rec.IsWIT()
	case targetExact:
		return rec.Matches(t.value)
	default:
		return false
	}
}

func (t Target) String() string {
	switch t.kind {
	case targetAny:
		return AnyWIT
	case targetExact:
		return t.value
	default:
		return ""
	}
}
