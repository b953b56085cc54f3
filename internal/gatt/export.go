package gatt

import (
	"fmt"
	"path"

	"github.com/godbus/dbus/v5"

	"glycoiq-ble/internal/bluez"
)

// Runner executes fn on the goroutine that owns the tree and waits for it.
// (*loop.Loop).Do satisfies it.
type Runner func(fn func()) error

// Export publishes the application, its services and characteristics on
// exp. Every incoming method call is executed through run.
func Export(exp bluez.Exporter, app *Application, run Runner) error {
	if err := exp.Export(&managerObject{app: app, run: run}, app.path, bluez.ObjectManager); err != nil {
		return fmt.Errorf("export %s: %w", app.path, err)
	}
	if err := bluez.ExportIntrospectable(exp, app.path, childNames(app.services), bluez.ObjectManagerInterface); err != nil {
		return err
	}

	for _, s := range app.services {
		if err := exp.Export(bluez.NewPropertiesObject(s, run), s.path, bluez.Properties); err != nil {
			return fmt.Errorf("export %s: %w", s.path, err)
		}
		if err := bluez.ExportIntrospectable(exp, s.path, childNames(s.characteristics),
			bluez.PropertiesInterface, bluez.GattServiceInterface); err != nil {
			return err
		}

		for _, c := range s.characteristics {
			if err := exp.Export(&characteristicObject{char: c, run: run}, c.path, bluez.GattCharacteristic1); err != nil {
				return fmt.Errorf("export %s: %w", c.path, err)
			}
			if err := exp.Export(bluez.NewPropertiesObject(c, run), c.path, bluez.Properties); err != nil {
				return fmt.Errorf("export %s: %w", c.path, err)
			}
			if err := bluez.ExportIntrospectable(exp, c.path, nil,
				bluez.PropertiesInterface, bluez.GattCharacteristicInterface); err != nil {
				return err
			}
		}
	}
	return nil
}

type pathed interface {
	Path() dbus.ObjectPath
}

func childNames[T pathed](items []T) []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = path.Base(string(item.Path()))
	}
	return names
}

// managerObject serves org.freedesktop.DBus.ObjectManager.
type managerObject struct {
	app *Application
	run Runner
}

func (o *managerObject) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	var objects ManagedObjects
	if err := o.run(func() { objects = o.app.GetManagedObjects() }); err != nil {
		return nil, bluez.FailedError(err)
	}
	return objects, nil
}

// characteristicObject serves org.bluez.GattCharacteristic1.
type characteristicObject struct {
	char *Characteristic
	run  Runner
}

func (o *characteristicObject) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	var value []byte
	if err := o.run(func() { value = o.char.ReadValue(options) }); err != nil {
		return nil, bluez.FailedError(err)
	}
	return value, nil
}

func (o *characteristicObject) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	if err := o.run(func() { o.char.WriteValue(value, options) }); err != nil {
		return bluez.FailedError(err)
	}
	return nil
}

func (o *characteristicObject) StartNotify() *dbus.Error {
	if err := o.run(o.char.StartNotify); err != nil {
		return bluez.FailedError(err)
	}
	return nil
}

func (o *characteristicObject) StopNotify() *dbus.Error {
	if err := o.run(o.char.StopNotify); err != nil {
		return bluez.FailedError(err)
	}
	return nil
}
