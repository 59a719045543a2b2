// Package radio switches the local Bluetooth adapter through BlueZ on the
// system D-Bus.
package radio

import (
	"context"
	"fmt"
	"regexp"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	bluezBus       = "org.bluez"
	bluezAdapter1  = "org.bluez.Adapter1"
	propertiesSet  = "org.freedesktop.DBus.Properties.Set"
	poweredProp    = "Powered"
	DefaultAdapter = "hci0"
)

var adapterName = regexp.MustCompile(`^hci[0-9]+$`)

// busObject is the part of dbus.BusObject the driver uses.
type busObject interface {
	GetProperty(p string) (dbus.Variant, error)
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// BlueZ powers an adapter on and off via org.bluez.Adapter1.Powered.
type BlueZ struct {
	adapter string
	obj     busObject
	logger  *logrus.Logger
}

// NewBlueZ connects to the system bus and binds to adapter (hci0 when empty).
func NewBlueZ(adapter string, logger *logrus.Logger) (*BlueZ, error) {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	if !adapterName.MatchString(adapter) {
		return nil, fmt.Errorf("invalid adapter name %q", adapter)
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return newBlueZ(adapter, conn.Object(bluezBus, AdapterPath(adapter)), logger), nil
}

func newBlueZ(adapter string, obj busObject, logger *logrus.Logger) *BlueZ {
	if logger == nil {
		logger = logrus.New()
	}
	return &BlueZ{adapter: adapter, obj: obj, logger: logger}
}

// AdapterPath returns the BlueZ object path of adapter.
func AdapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

func (b *BlueZ) Adapter() string { return b.adapter }

// Powered reads the adapter power state.
func (b *BlueZ) Powered(_ context.Context) (bool, error) {
	v, err := b.obj.GetProperty(bluezAdapter1 + "." + poweredProp)
	if err != nil {
		return false, fmt.Errorf("read %s power state: %w", b.adapter, err)
	}
	on, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s.%s has unexpected type %T", bluezAdapter1, poweredProp, v.Value())
	}
	return on, nil
}

// SetPowered switches the adapter on or off.
func (b *BlueZ) SetPowered(ctx context.Context, on bool) error {
	call := b.obj.CallWithContext(ctx, propertiesSet, 0, bluezAdapter1, poweredProp, dbus.MakeVariant(on))
	if call.Err != nil {
		return fmt.Errorf("set %s powered=%t: %w", b.adapter, on, call.Err)
	}
	b.logger.WithFields(logrus.Fields{"adapter": b.adapter, "powered": on}).Debug("Adapter power changed")
	return nil
}
