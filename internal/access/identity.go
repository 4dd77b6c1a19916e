package access

import (
	"net/http"
	"os"
)

// ForcedUserEnv overrides every request identity when set. Meant for local
// development without the identity-forwarding proxy in front.
const ForcedUserEnv = "SIMPLE_GAL_FORCED_USER"

// identityHeader is set by the upstream proxy after it has authenticated
// the user. The service trusts it blindly, which is why the header must be
// present exactly once.
const identityHeader = "X-Forwarded-Email"

// Identity is the authenticated caller as reported by the upstream proxy.
// Forced identities come from the environment override and bypass the
// known-email admission check.
type Identity struct {
	Email  string
	Forced bool
}

// IdentityFromRequest extracts the caller identity. The environment override
// wins over the header; otherwise the header must carry exactly one value.
// Zero or multiple values leave the request anonymous, which gated
// endpoints turn into 401.
func IdentityFromRequest(r *http.Request) (Identity, bool) {
	if forced, ok := os.LookupEnv(ForcedUserEnv); ok {
		return Identity{Email: forced, Forced: true}, true
	}
	values := r.Header.Values(identityHeader)
	if len(values) != 1 {
		return Identity{}, false
	}
	return Identity{Email: values[0]}, true
}
