package repository

import "context"

// EventLogRepository is the ordered, append-only event log. Each Append*
// method assigns the entry a monotonic sequence number; callers are
// responsible for invocation order (the provisioning saga emits
// identity, account, commit, sync — in that order).
type EventLogRepository interface {
	AppendIdentityEvent(ctx context.Context, did, handle string) error
	AppendAccountEvent(ctx context.Context, did, status string) error
	AppendCommitEvent(ctx context.Context, did, root, rev string) error
	AppendSyncEvent(ctx context.Context, did, root, rev string) error
}
