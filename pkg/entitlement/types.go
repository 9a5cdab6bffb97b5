package entitlement

// Status represents the subscription state the entitlement set was
// derived from. The vocabulary matches the billing provider's statuses
// plus "free" for accounts without a subscription row; "free" is only
// ever produced locally and never persisted.
type Status string

const (
	StatusFree       Status = "free"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
	StatusIncomplete Status = "incomplete"
	StatusTrialing   Status = "trialing"
	StatusUnpaid     Status = "unpaid"
)

// Key identifies a single entitlement capability.
type Key string

const (
	KeyBaseBundle    Key = "base_bundle"
	KeyLunarCalendar Key = "lunar_calendar"
	KeyAstrogematria Key = "astrogematria"
	KeyElectiveChart Key = "elective_chart"
	KeyDraconic      Key = "draconic"
)

// Set is the derived entitlement projection of a subscription. It is
// always recomputed in full from the item set and status; no code path
// sets an individual flag outside Derive.
type Set struct {
	HasBaseBundle    bool   `json:"hasBaseBundle"`
	HasLunarCalendar bool   `json:"hasLunarCalendar"`
	HasAstrogematria bool   `json:"hasAstrogematria"`
	HasElectiveChart bool   `json:"hasElectiveChart"`
	HasDraconic      bool   `json:"hasDraconicAccess"`
	Status           Status `json:"status"`
}

// Allows reports whether the set grants the given entitlement key.
func (s Set) Allows(key Key) bool {
	switch key {
	case KeyBaseBundle:
		return s.HasBaseBundle
	case KeyLunarCalendar:
		return s.HasLunarCalendar
	case KeyAstrogematria:
		return s.HasAstrogematria
	case KeyElectiveChart:
		return s.HasElectiveChart
	case KeyDraconic:
		// Draconic access additionally requires an active base bundle,
		// mirroring the product rule that one-time chart purchases are
		// only usable by subscribers.
		return s.HasDraconic && s.HasBaseBundle && s.Status == StatusActive
	default:
		return false
	}
}

// Free returns the zero entitlement set for accounts without a
// subscription.
func Free() Set {
	return Set{Status: StatusFree}
}

func (s Set) set(key Key) Set {
	switch key {
	case KeyBaseBundle:
		s.HasBaseBundle = true
	case KeyLunarCalendar:
		s.HasLunarCalendar = true
	case KeyAstrogematria:
		s.HasAstrogematria = true
	case KeyElectiveChart:
		s.HasElectiveChart = true
	case KeyDraconic:
		s.HasDraconic = true
	}
	return s
}
