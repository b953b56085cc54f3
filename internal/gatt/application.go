package gatt

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"glycoiq-ble/internal/bluez"
)

// AppPath is the root of the exported GATT tree.
const AppPath dbus.ObjectPath = "/org/bluez/app"

// ManagedObjects is the GetManagedObjects reply shape.
type ManagedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Application is the root of the GATT tree.
type Application struct {
	path     dbus.ObjectPath
	services []*Service
	emitter  bluez.Emitter
	log      logrus.FieldLogger
}

// NewApplication creates an empty tree. Notifications are sent through emitter.
func NewApplication(emitter bluez.Emitter, log logrus.FieldLogger) *Application {
	return &Application{
		path:    AppPath,
		emitter: emitter,
		log:     log,
	}
}

// Path returns the application object path.
func (a *Application) Path() dbus.ObjectPath { return a.path }

// AddService appends a service at the next index. Its path is
// <app path>/service<index>.
func (a *Application) AddService(id string, primary bool) (*Service, error) {
	normalized, err := normalizeUUID(id)
	if err != nil {
		return nil, err
	}
	for _, s := range a.services {
		if s.uuid == normalized {
			return nil, fmt.Errorf("service %s: %w", normalized, ErrDuplicateUUID)
		}
	}
	s := &Service{
		index:   len(a.services),
		uuid:    normalized,
		primary: primary,
		path:    dbus.ObjectPath(fmt.Sprintf("%s/service%d", a.path, len(a.services))),
		app:     a,
	}
	a.services = append(a.services, s)
	return s, nil
}

// GetManagedObjects returns the interface and attribute bag of every service
// and characteristic in the tree.
func (a *Application) GetManagedObjects() ManagedObjects {
	objects := make(ManagedObjects)
	for _, s := range a.services {
		objects[s.path] = map[string]map[string]dbus.Variant{s.Interface(): s.Properties()}
		for _, c := range s.characteristics {
			objects[c.path] = map[string]map[string]dbus.Variant{c.Interface(): c.Properties()}
		}
	}
	return objects
}
