package ws

// Authority answers permission checks for a connection. The auth
// principal implements it; tests use fakes.
type Authority interface {
	Name() string
	HasPermission(permission string) bool
}

// Conn is one subscriber connection as seen by the hub. Emit must be
// safe for concurrent use; the hub never waits on a slow subscriber
// beyond the Emit call itself.
type Conn interface {
	ID() string
	Authority() Authority
	Emit(event string, data any) error
	Close()
}
