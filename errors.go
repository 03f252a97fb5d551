package ircore

import "fmt"

// result is returned by dispatcher handlers; it lets one handler stop
// downstream observers for the message it just processed without
// propagating a Go error up through the receive loop.
type result uint8

const (
	// resultOK means dispatch should continue to any remaining
	// observers for this message (display, other handlers).
	resultOK result = iota
	// resultError means the handler hit an unexpected condition; it is
	// logged and counted, but dispatch continues.
	resultError
	// resultEat means this message must not be passed to subsequent
	// observers (e.g. a captured redirect line).
	resultEat
)

// NetError wraps a transient network condition: closed-by-peer, timeout,
// retryable TLS error. The connection is torn down and, per the server's
// autoreconnect setting, a reconnect is scheduled.
type NetError struct {
	Op  string
	Err error
}

func (e *NetError) Error() string { return fmt.Sprintf("net: %s: %v", e.Op, e.Err) }
func (e *NetError) Unwrap() error { return e.Err }

// ProtocolError marks a malformed inbound frame: too few params, a bad
// numeric, or an unparseable escape. The offending line is dropped;
// dispatch continues with the next line.
type ProtocolError struct {
	Command string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s: %s", e.Command, e.Reason)
}

// AuthError marks a SASL or registration failure; handling is governed
// by the server's sasl_fail policy (continue/reconnect/disconnect).
type AuthError struct {
	Mechanism string
	Reason    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s: %s", e.Mechanism, e.Reason)
}

// CapError marks a NAK'd or otherwise rejected capability; the feature
// is simply not used.
type CapError struct {
	Name   string
	Reason string
}

func (e *CapError) Error() string { return fmt.Sprintf("cap: %s: %s", e.Name, e.Reason) }

// ConfigError marks an invalid ServerConfig.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// ErrNotConnected is returned by Send-family methods called before or
// after the connection is live.
var ErrNotConnected = &NetError{Op: "send", Err: fmt.Errorf("server is not connected")}

// TimedOutError marks an operation (dial, SASL exchange, redirect) that
// exceeded its configured deadline.
type TimedOutError struct {
	Op string
}

func (e *TimedOutError) Error() string { return fmt.Sprintf("%s: timed out", e.Op) }
