package domain

import "time"

// AuthTier reflects which credential fields are populated and therefore which
// upstream quota applies. The limiter is configured from this value; the
// credential store itself never enforces it.
type AuthTier string

const (
	// TierAnonymous applies when no credentials are configured.
	TierAnonymous AuthTier = "anonymous"
	// TierApp applies when only a client id (and optional secret) is configured.
	TierApp AuthTier = "app"
	// TierUser applies when a full username/password grant is configured.
	TierUser AuthTier = "user"
)

func (t AuthTier) String() string { return string(t) }

// RequestsPerMinute returns the upstream quota granted to the tier.
func (t AuthTier) RequestsPerMinute() int {
	switch t {
	case TierUser:
		return 100
	case TierApp:
		return 60
	default:
		return 10
	}
}

// Credential holds the OAuth state for the single upstream account this
// process talks to. It is exclusively owned by the auth store; nothing else
// holds a reference to it.
type Credential struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string

	AccessToken string
	ExpiresAt   time.Time
	Scope       string
}

// HasClientCredentials reports whether an app-level grant can be attempted.
func (c Credential) HasClientCredentials() bool {
	return c.ClientID != ""
}

// HasUserCredentials reports whether the interactive password grant applies.
func (c Credential) HasUserCredentials() bool {
	return c.ClientID != "" && c.Username != "" && c.Password != ""
}

// Tier derives the rate-limit tier from the populated credential fields.
func (c Credential) Tier() AuthTier {
	switch {
	case c.HasUserCredentials():
		return TierUser
	case c.HasClientCredentials():
		return TierApp
	default:
		return TierAnonymous
	}
}

// TokenValid reports whether the access token can still be presented at the
// reference time. A token with no expiry, an elapsed expiry, or an expiry
// inside the early-refresh buffer is treated as expired so a refresh lands
// before the upstream starts rejecting it.
func (c Credential) TokenValid(at time.Time, buffer time.Duration) bool {
	if c.AccessToken == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return at.Before(c.ExpiresAt.Add(-buffer))
}

// Sanitized returns a copy safe for persistence: the account password is
// stripped once it has been exchanged for a token.
func (c Credential) Sanitized() Credential {
	c.Password = ""
	return c
}
