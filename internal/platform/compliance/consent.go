package compliance

import (
	"context"
)

// consentCurrent reports whether the user has accepted the consent version
// the gateway requires. A missing or stale recorded version fails the gate;
// the caller maps that to 403 with consentRequired set so clients can route
// the user to the agreement screen instead of a generic error page.
//
// Unauthenticated principals fail closed: a protected path without an
// identity can never satisfy consent.
func (p *Pipeline) consentCurrent(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	accepted, err := p.dir.ConsentVersion(ctx, userID)
	if err != nil {
		return false, err
	}
	return accepted == p.opts.ConsentVersion, nil
}
