package bluez

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// ErrUnsupportedInterface is wrapped by every UnsupportedInterfaceError.
var ErrUnsupportedInterface = errors.New("interface not supported")

// UnsupportedInterfaceError is returned when a property query names an
// interface the object does not implement.
type UnsupportedInterfaceError struct {
	Interface string
}

func (e *UnsupportedInterfaceError) Error() string {
	return fmt.Sprintf("Interface not supported: %s", e.Interface)
}

func (e *UnsupportedInterfaceError) Unwrap() error {
	return ErrUnsupportedInterface
}

// PropertyOwner is an exported object with a single property-bearing interface.
type PropertyOwner interface {
	Interface() string
	Properties() map[string]dbus.Variant
}

// GetAll returns the attribute bag of o for iface.
func GetAll(o PropertyOwner, iface string) (map[string]dbus.Variant, error) {
	if iface != o.Interface() {
		return nil, &UnsupportedInterfaceError{Interface: iface}
	}
	return o.Properties(), nil
}

// Get returns one property of o.
func Get(o PropertyOwner, iface, name string) (dbus.Variant, error) {
	props, err := GetAll(o, iface)
	if err != nil {
		return dbus.Variant{}, err
	}
	v, ok := props[name]
	if !ok {
		return dbus.Variant{}, fmt.Errorf("no such property %s.%s", iface, name)
	}
	return v, nil
}

// PropertiesObject serves org.freedesktop.DBus.Properties for an owner.
// Calls are funnelled through run so the owner's state is only read on the
// goroutine that owns it; a nil run calls directly.
type PropertiesObject struct {
	owner PropertyOwner
	run   func(func()) error
}

// NewPropertiesObject wraps owner for export.
func NewPropertiesObject(owner PropertyOwner, run func(func()) error) *PropertiesObject {
	if run == nil {
		run = func(fn func()) error {
			fn()
			return nil
		}
	}
	return &PropertiesObject{owner: owner, run: run}
}

// GetAll implements org.freedesktop.DBus.Properties.GetAll.
func (p *PropertiesObject) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	var (
		props map[string]dbus.Variant
		err   error
	)
	if runErr := p.run(func() { props, err = GetAll(p.owner, iface) }); runErr != nil {
		return nil, FailedError(runErr)
	}
	if err != nil {
		return nil, dbus.NewError(ErrUnknownInterface, []interface{}{err.Error()})
	}
	return props, nil
}

// Get implements org.freedesktop.DBus.Properties.Get.
func (p *PropertiesObject) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	var (
		v   dbus.Variant
		err error
	)
	if runErr := p.run(func() { v, err = Get(p.owner, iface, name) }); runErr != nil {
		return dbus.Variant{}, FailedError(runErr)
	}
	if errors.Is(err, ErrUnsupportedInterface) {
		return dbus.Variant{}, dbus.NewError(ErrUnknownInterface, []interface{}{err.Error()})
	}
	if err != nil {
		return dbus.Variant{}, dbus.NewError(ErrInvalidArgs, []interface{}{err.Error()})
	}
	return v, nil
}

// Set implements org.freedesktop.DBus.Properties.Set. All exported
// properties are read-only.
func (p *PropertiesObject) Set(iface, name string, value dbus.Variant) *dbus.Error {
	if iface != p.owner.Interface() {
		return dbus.NewError(ErrUnknownInterface, []interface{}{(&UnsupportedInterfaceError{Interface: iface}).Error()})
	}
	return dbus.NewError(ErrPropertyReadOnly, []interface{}{fmt.Sprintf("property %s.%s is read-only", iface, name)})
}

// FailedError maps an internal failure onto org.bluez.Error.Failed.
func FailedError(err error) *dbus.Error {
	return dbus.NewError("org.bluez.Error.Failed", []interface{}{err.Error()})
}
