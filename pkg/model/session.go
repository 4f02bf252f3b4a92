package model

import "time"

// Session is the server-side record binding an authenticated username to
// its live connection (in-memory only).
type Session struct {
	Username    string
	ConnID      string
	State       ConnectionState
	Token       string
	ConnectedAt time.Time
}
