package compliance

import (
	"context"
	"time"
)

// touchSession evaluates the idle-timeout gate and returns expired=true when
// the user's last unit of work is older than the configured timeout.
//
// On expiry the session record is cleared so the next unit of work starts a
// fresh activity window, mirroring a re-login with a still-valid token.
// Clearing is idempotent: concurrent requests that both observe the expired
// timestamp both get rejected, and a double clear is a no-op.
//
// A user with no session record is starting a session; their activity is
// stamped and they are admitted.
func (p *Pipeline) touchSession(ctx context.Context, userID string, now time.Time) (expired bool, err error) {
	last, found, err := p.sessions.LastActivity(ctx, userID)
	if err != nil {
		return false, err
	}

	if found && now.Sub(last) > p.opts.IdleTimeout {
		if err := p.sessions.Clear(ctx, userID); err != nil {
			p.logger.Error().Err(err).Str("user_id", userID).Msg("failed to clear expired session")
		}
		return true, nil
	}

	if err := p.sessions.Touch(ctx, userID, now); err != nil {
		return false, err
	}
	return false, nil
}
