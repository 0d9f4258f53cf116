package entity

// LinkSessionStatus is the lifecycle state of one in-progress handshake.
// Transitions are pending→completed or pending→failed only, never backward;
// once terminal the session is immutable until it expires from the cache.
type LinkSessionStatus string

const (
	LinkSessionPending   LinkSessionStatus = "pending"
	LinkSessionCompleted LinkSessionStatus = "completed"
	LinkSessionFailed    LinkSessionStatus = "failed"
)

// LinkSession is the ephemeral handshake state held in the session cache
// between Init and the provider callback. It is never persisted to SQL.
//
// SessionToken is a separate secret required to poll status, so that a party
// who only observed the session id (e.g. the provider, or anything logging
// the callback URL) cannot read the outcome.
type LinkSession struct {
	SessionID    string            `json:"sessionId"`
	SessionToken string            `json:"sessionToken"`
	ServiceID    string            `json:"serviceId"`
	Status       LinkSessionStatus `json:"status"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`

	// ExpiresAt is advisory, for API responses only. Actual expiry is
	// enforced by the cache backend TTL.
	ExpiresAt string `json:"expiresAt"`

	// LinkDid is set when an already-authenticated user is attaching the
	// external identity to their own account rather than logging in fresh.
	LinkDid     string `json:"linkDid,omitempty"`
	AllowCreate bool   `json:"allowCreate"`

	Result *LinkResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// LinkResult is the outcome of a completed login/link/provisioning run.
// It is a transient projection returned to the caller, never persisted
// outside the session cache.
type LinkResult struct {
	AccessJwt  string `json:"accessJwt,omitempty"`
	RefreshJwt string `json:"refreshJwt,omitempty"`
	DID        string `json:"did"`
	DidDoc     any    `json:"didDoc,omitempty"`
	Handle     string `json:"handle"`
	Linked     bool   `json:"linked"`
	Created    bool   `json:"created"`
	Provider   string `json:"provider"`
	ExternalID string `json:"externalId"`
}
