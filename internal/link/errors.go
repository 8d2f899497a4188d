package link

import "errors"

var (
	// ErrNotConnected means the user has no active WHOOP link.
	ErrNotConnected = errors.New("link: user not connected to whoop")

	// ErrRevoked means the upstream rejected the refresh grant; the link has
	// been marked inactive and the user must reconnect.
	ErrRevoked = errors.New("link: whoop connection revoked")

	// ErrRefreshFailed covers transient refresh failures (network, 5xx from
	// the token endpoint). The link stays active.
	ErrRefreshFailed = errors.New("link: token refresh failed")

	// ErrInvalidState means an OAuth callback arrived with no matching
	// pending flow, or one that was already consumed or has expired.
	ErrInvalidState = errors.New("link: invalid or expired oauth state")
)
