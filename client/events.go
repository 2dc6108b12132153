package client

// Event is a lifecycle notification emitted by the transport. Routing guards
// and UI code subscribe to these instead of polling session state.
type Event string

const (
	// EventLogin fires after a session is established (login, register or a
	// successful restore).
	EventLogin Event = "login"
	// EventLogout fires after an explicit logout.
	EventLogout Event = "logout"
	// EventUnauthorized fires on a non-refreshable 401: the server rejected a
	// request that was already retried with a fresh token.
	EventUnauthorized Event = "unauthorized"
	// EventSessionExpired fires exactly once per terminal refresh failure.
	EventSessionExpired Event = "session-expired"
)

// Subscribe registers an observer for lifecycle events. Observers are invoked
// synchronously in subscription order and must not block.
func (c *Client) Subscribe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	observers := make([]func(Event), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
}
