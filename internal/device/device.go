package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected ConnectionState = "not_connected"
	BluetoothOff ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem, for the BLE
// adapter as well as for the message bus.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected = &ConnectionError{State: NotConnected}
	ErrBluetoothOff = &ConnectionError{State: BluetoothOff}
)

// ErrUnsupported is returned when the current platform has no BLE backend.
var ErrUnsupported = errors.New("unsupported")

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// AddressType is the LE address type reported with an advertisement.
type AddressType uint8

const (
	AddressPublic AddressType = iota
	AddressRandom
	AddressRPAPublic
	AddressRPARandom
)

func (t AddressType) String() string {
	switch t {
	case AddressPublic:
		return "PUBLIC"
	case AddressRandom:
		return "RANDOM"
	case AddressRPAPublic:
		return "RPA_PUBLIC"
	case AddressRPARandom:
		return "RPA_RANDOM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// IsRandom reports whether the address is a random (non-identity) address.
func (t AddressType) IsRandom() bool {
	return t == AddressRandom || t == AddressRPARandom
}

// ServiceData is one service-data AD structure of an advertisement.
type ServiceData struct {
	UUID string
	Data []byte
}

// Advertisement is the view of a received advertisement the proxy works with.
// Addr returns the MAC address in upper-case colon notation.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	ServiceData() []ServiceData
	Services() []string
	Connectable() bool

	RSSI() int
	Addr() string
	AddressType() AddressType
}

// ScanningDevice represents a BLE device capable of scanning for advertisements.
// Close releases the adapter; a closed device cannot scan again.
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
	Close() error
}

// NormalizeUUID converts a UUID string to the short lower-case form used for
// comparisons: dashes and a 0x prefix are stripped, and UUIDs in the Bluetooth
// SIG base range (0000xxxx-0000-1000-8000-00805f9b34fb) collapse to xxxx.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")
	const sigBaseSuffix = "00001000800000805f9b34fb"
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeAddress upper-cases a MAC address and trims surrounding space.
func NormalizeAddress(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}
