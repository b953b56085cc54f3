package gatt

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"glycoiq-ble/internal/bluez"
)

// Service is a primary or secondary GATT service.
type Service struct {
	index           int
	uuid            string
	primary         bool
	path            dbus.ObjectPath
	app             *Application
	characteristics []*Characteristic
}

// UUID returns the normalized service UUID.
func (s *Service) UUID() string { return s.uuid }

// Path returns the D-Bus object path.
func (s *Service) Path() dbus.ObjectPath { return s.path }

// Primary reports whether this is a primary service.
func (s *Service) Primary() bool { return s.primary }

// Characteristics returns the characteristics in index order.
func (s *Service) Characteristics() []*Characteristic {
	return append([]*Characteristic(nil), s.characteristics...)
}

// AddCharacteristic appends a characteristic at the next index. Its path is
// <service path>/char<index>.
func (s *Service) AddCharacteristic(id string, flags ...Flag) (*Characteristic, error) {
	normalized, err := normalizeUUID(id)
	if err != nil {
		return nil, err
	}
	if s.Characteristic(normalized) != nil {
		return nil, fmt.Errorf("characteristic %s in service %s: %w", normalized, s.uuid, ErrDuplicateUUID)
	}
	c := newCharacteristic(s, len(s.characteristics), normalized, flags)
	s.characteristics = append(s.characteristics, c)
	return c, nil
}

// Characteristic looks up a characteristic by UUID, or returns nil.
func (s *Service) Characteristic(id string) *Characteristic {
	normalized, err := normalizeUUID(id)
	if err != nil {
		return nil
	}
	for _, c := range s.characteristics {
		if c.uuid == normalized {
			return c
		}
	}
	return nil
}

// Interface implements bluez.PropertyOwner.
func (s *Service) Interface() string { return bluez.GattService1 }

// Properties implements bluez.PropertyOwner.
func (s *Service) Properties() map[string]dbus.Variant {
	paths := make([]dbus.ObjectPath, len(s.characteristics))
	for i, c := range s.characteristics {
		paths[i] = c.path
	}
	return map[string]dbus.Variant{
		"UUID":            dbus.MakeVariant(s.uuid),
		"Primary":         dbus.MakeVariant(s.primary),
		"Characteristics": dbus.MakeVariant(paths),
	}
}
