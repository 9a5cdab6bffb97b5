package entitlement

import "strings"

// routeRequirements maps application path prefixes to the entitlement
// required to access them. Paths not listed are free.
var routeRequirements = []struct {
	prefix string
	key    Key
}{
	{"/calendario/personal", KeyBaseBundle},
	{"/cartas/tropica", KeyBaseBundle},
	{"/calendario/lunar", KeyLunarCalendar},
	{"/astrogematria/interpretaciones", KeyAstrogematria},
	{"/carta-electiva", KeyElectiveChart},
	{"/cartas/draconica", KeyDraconic},
}

// RequiredFor returns the entitlement a path requires, if any. Used by
// the host application's gating middleware; kept here because it is
// pure mapping logic over the entitlement vocabulary.
func RequiredFor(path string) (Key, bool) {
	for _, r := range routeRequirements {
		if strings.HasPrefix(path, r.prefix) {
			return r.key, true
		}
	}
	return "", false
}
