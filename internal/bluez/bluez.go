// Package bluez holds the BlueZ D-Bus names and the thin wrappers used to
// talk to the adapter object.
package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// BlueZ DBus constants
const (
	Bus                   = "org.bluez"
	Adapter1              = "org.bluez.Adapter1"
	GattManager1          = "org.bluez.GattManager1"
	GattService1          = "org.bluez.GattService1"
	GattCharacteristic1   = "org.bluez.GattCharacteristic1"
	LEAdvertisingManager1 = "org.bluez.LEAdvertisingManager1"
	LEAdvertisement1      = "org.bluez.LEAdvertisement1"

	Properties     = "org.freedesktop.DBus.Properties"
	ObjectManager  = "org.freedesktop.DBus.ObjectManager"
	Introspectable = "org.freedesktop.DBus.Introspectable"

	PropertiesChanged = Properties + ".PropertiesChanged"
)

// Standard D-Bus error names returned by exported objects.
const (
	ErrUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrInvalidArgs      = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrPropertyReadOnly = "org.freedesktop.DBus.Error.PropertyReadOnly"
)

// Exporter publishes Go values as D-Bus objects. *dbus.Conn satisfies it.
type Exporter interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
}

// Emitter sends D-Bus signals. *dbus.Conn satisfies it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// AdapterPath converts an adapter name to its BlueZ object path.
// Example: "hci0" → "/org/bluez/hci0"
func AdapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// GetProperty reads iface.property from obj and asserts its type.
func GetProperty[T any](obj dbus.BusObject, iface, property string) (T, error) {
	var zero T
	variant, err := obj.GetProperty(iface + "." + property)
	if err != nil {
		return zero, fmt.Errorf("get %s.%s: %w", iface, property, err)
	}

	val, ok := variant.Value().(T)
	if !ok {
		return zero, fmt.Errorf("property %s.%s has unexpected type %T", iface, property, variant.Value())
	}
	return val, nil
}
