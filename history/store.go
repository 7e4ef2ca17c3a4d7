// Package history tracks per-account sync progress: the last processed
// history position and the set of message ids already handled.
package history

// Store is the cursor and dedup contract shared by the in-memory and the
// durable implementations. Implementations must be safe for concurrent use
// across accounts and within one account. The store imposes no ordering on
// cursor values; callers decide when a position may advance.
//
// Calling any method with an empty account is a programming error and panics.
type Store interface {
	// Cursor returns the last recorded history position for the account,
	// or false if the account has never been seen.
	Cursor(account string) (uint64, bool)

	// SetCursor records a history position for the account.
	SetCursor(account string, position uint64)

	// IsProcessed reports whether the message id was already handled
	// for the account.
	IsProcessed(account, messageID string) bool

	// MarkProcessed records the message id as handled for the account.
	MarkProcessed(account, messageID string)
}

func mustAccount(account string) {
	if account == "" {
		panic("history: empty account")
	}
}
