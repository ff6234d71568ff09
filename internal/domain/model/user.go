package model

import "time"

// User carries the few account fields this service reads: the credit balance
// backing the paywall and the privacy flags honored by the message store.
type User struct {
	ID                  string
	Credits             int
	AllowMessageStorage bool
	DataEncrypted       bool
	CreatedAt           time.Time
}
