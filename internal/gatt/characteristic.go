package gatt

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"glycoiq-ble/internal/bluez"
)

// Characteristic is a GATT characteristic with a cached value and a
// subscription flag.
type Characteristic struct {
	index   int
	uuid    string
	flags   []Flag
	path    dbus.ObjectPath
	service *Service

	value     []byte
	notifying bool
	handler   WriteHandler

	emitter bluez.Emitter
	log     logrus.FieldLogger
}

func newCharacteristic(s *Service, index int, id string, flags []Flag) *Characteristic {
	path := dbus.ObjectPath(fmt.Sprintf("%s/char%d", s.path, index))
	return &Characteristic{
		index:   index,
		uuid:    id,
		flags:   append([]Flag(nil), flags...),
		path:    path,
		service: s,
		value:   []byte{},
		emitter: s.app.emitter,
		log:     s.app.log.WithFields(logrus.Fields{"uuid": id, "path": path}),
	}
}

// UUID returns the normalized characteristic UUID.
func (c *Characteristic) UUID() string { return c.uuid }

// Path returns the D-Bus object path.
func (c *Characteristic) Path() dbus.ObjectPath { return c.path }

// HasFlag reports whether the characteristic was declared with f.
func (c *Characteristic) HasFlag(f Flag) bool {
	for _, flag := range c.flags {
		if flag == f {
			return true
		}
	}
	return false
}

// Notifying reports whether a client is subscribed.
func (c *Characteristic) Notifying() bool { return c.notifying }

// Value returns a copy of the cached value.
func (c *Characteristic) Value() []byte { return append([]byte{}, c.value...) }

// HandleWrite routes writes to h.
func (c *Characteristic) HandleWrite(h WriteHandler) { c.handler = h }

// Interface implements bluez.PropertyOwner.
func (c *Characteristic) Interface() string { return bluez.GattCharacteristic1 }

// Properties implements bluez.PropertyOwner.
func (c *Characteristic) Properties() map[string]dbus.Variant {
	flags := make([]string, len(c.flags))
	for i, f := range c.flags {
		flags[i] = string(f)
	}
	return map[string]dbus.Variant{
		"Service": dbus.MakeVariant(c.service.path),
		"UUID":    dbus.MakeVariant(c.uuid),
		"Flags":   dbus.MakeVariant(flags),
		"Value":   dbus.MakeVariant(c.Value()),
	}
}

// ReadValue returns the cached value, starting at the "offset" option when
// BlueZ performs a long read. Characteristics without the read flag always
// return an empty value.
func (c *Characteristic) ReadValue(options map[string]dbus.Variant) []byte {
	c.log.Debug("ReadValue")
	if !c.HasFlag(FlagRead) {
		return []byte{}
	}
	offset := readOffset(options)
	if offset >= len(c.value) {
		return []byte{}
	}
	return append([]byte{}, c.value[offset:]...)
}

// WriteValue passes value to the write handler. Writes to a characteristic
// without a handler are logged and otherwise ignored.
func (c *Characteristic) WriteValue(value []byte, options map[string]dbus.Variant) {
	if c.handler == nil {
		c.log.WithField("value", value).Info("WriteValue ignored, characteristic has no write handler")
		return
	}
	c.log.WithField("value", string(value)).Debug("WriteValue")
	c.handler.HandleWrite(append([]byte{}, value...))
}

// StartNotify subscribes the client. Repeating it is a no-op.
func (c *Characteristic) StartNotify() {
	if c.notifying {
		return
	}
	c.notifying = true
	c.log.Info("Notifications enabled")
}

// StopNotify unsubscribes the client. Repeating it is a no-op.
func (c *Characteristic) StopNotify() {
	if !c.notifying {
		return
	}
	c.notifying = false
	c.log.Info("Notifications disabled")
}

// Notify stores value and pushes it to the subscribed client as a
// PropertiesChanged signal. Without a subscriber the value is dropped
// unchanged and Notify reports false; nothing is queued.
func (c *Characteristic) Notify(value []byte) bool {
	if !c.notifying {
		c.log.WithField("bytes", len(value)).Warn("No subscriber, notification dropped")
		return false
	}
	c.value = append([]byte{}, value...)

	changed := map[string]dbus.Variant{"Value": dbus.MakeVariant(c.Value())}
	if err := c.emitter.Emit(c.path, bluez.PropertiesChanged, bluez.GattCharacteristic1, changed, []string{}); err != nil {
		c.log.WithError(err).Error("Failed to emit notification")
		return true
	}
	c.log.WithField("value", string(value)).Info("Notified value")
	return true
}

func readOffset(options map[string]dbus.Variant) int {
	v, ok := options["offset"]
	if !ok {
		return 0
	}
	switch n := v.Value().(type) {
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case int32:
		if n > 0 {
			return int(n)
		}
	}
	return 0
}
