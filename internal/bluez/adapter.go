package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Adapter wraps the BlueZ adapter object (/org/bluez/hciN). It carries the
// Adapter1 properties as well as the GATT and advertising managers, which
// BlueZ exposes on the same path.
type Adapter struct {
	path dbus.ObjectPath
	obj  dbus.BusObject
}

// NewAdapter returns a handle on the named adapter. No bus traffic happens
// until a method is called.
func NewAdapter(conn *dbus.Conn, name string) *Adapter {
	path := AdapterPath(name)
	return &Adapter{
		path: path,
		obj:  conn.Object(Bus, path),
	}
}

// Path returns the adapter object path.
func (a *Adapter) Path() dbus.ObjectPath {
	return a.path
}

// SetProperty assigns an org.bluez.Adapter1 property.
func (a *Adapter) SetProperty(name string, value interface{}) error {
	call := a.obj.Call(Properties+".Set", 0, Adapter1, name, dbus.MakeVariant(value))
	if call.Err != nil {
		return fmt.Errorf("set %s.%s: %w", Adapter1, name, call.Err)
	}
	return nil
}

// BoolProperty reads a boolean org.bluez.Adapter1 property.
func (a *Adapter) BoolProperty(name string) (bool, error) {
	return GetProperty[bool](a.obj, Adapter1, name)
}

// RegisterApplication asks BlueZ to import the GATT tree rooted at path.
// The call is asynchronous: a non-nil return means the request could not be
// sent, while the eventual BlueZ reply is handed to done.
func (a *Adapter) RegisterApplication(path dbus.ObjectPath, done func(error)) error {
	return a.goCall(GattManager1+".RegisterApplication", done, path, map[string]dbus.Variant{})
}

// RegisterAdvertisement submits the advertisement object at path. It follows
// the same asynchronous contract as RegisterApplication.
func (a *Adapter) RegisterAdvertisement(path dbus.ObjectPath, done func(error)) error {
	return a.goCall(LEAdvertisingManager1+".RegisterAdvertisement", done, path, map[string]dbus.Variant{})
}

// UnregisterAdvertisement withdraws a previously registered advertisement.
func (a *Adapter) UnregisterAdvertisement(path dbus.ObjectPath) error {
	call := a.obj.Call(LEAdvertisingManager1+".UnregisterAdvertisement", 0, path)
	return call.Err
}

func (a *Adapter) goCall(method string, done func(error), args ...interface{}) error {
	ch := make(chan *dbus.Call, 1)
	call := a.obj.Go(method, 0, ch, args...)
	if call.Err != nil {
		return call.Err
	}
	go func() {
		reply := <-ch
		if done != nil {
			done(reply.Err)
		}
	}()
	return nil
}
