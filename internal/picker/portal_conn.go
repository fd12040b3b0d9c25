package picker

import (
	"github.com/godbus/dbus/v5"
)

// Connection abstracts the godbus session connection for testability
type Connection interface {
	// Object returns a BusObject for the given destination and path
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	// Names returns the connection's bus names, unique name first
	Names() []string
	// AddMatchSignal subscribes the connection to matching signals
	AddMatchSignal(options ...dbus.MatchOption) error
	// RemoveMatchSignal drops a subscription added by AddMatchSignal
	RemoveMatchSignal(options ...dbus.MatchOption) error
	// Signal registers ch to receive signals
	Signal(ch chan<- *dbus.Signal)
	// RemoveSignal unregisters ch
	RemoveSignal(ch chan<- *dbus.Signal)
	// Close closes the connection
	Close() error
}

// sessionConnection wraps *dbus.Conn to implement Connection
type sessionConnection struct {
	conn *dbus.Conn
}

func (c *sessionConnection) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return c.conn.Object(dest, path)
}

func (c *sessionConnection) Names() []string {
	return c.conn.Names()
}

func (c *sessionConnection) AddMatchSignal(options ...dbus.MatchOption) error {
	return c.conn.AddMatchSignal(options...)
}

func (c *sessionConnection) RemoveMatchSignal(options ...dbus.MatchOption) error {
	return c.conn.RemoveMatchSignal(options...)
}

func (c *sessionConnection) Signal(ch chan<- *dbus.Signal) {
	c.conn.Signal(ch)
}

func (c *sessionConnection) RemoveSignal(ch chan<- *dbus.Signal) {
	c.conn.RemoveSignal(ch)
}

func (c *sessionConnection) Close() error {
	return c.conn.Close()
}

// ConnectSessionBus connects to the user's session bus and returns a Connection
func ConnectSessionBus() (Connection, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &sessionConnection{conn: conn}, nil
}
