// Package advert builds the LE advertisement and registers it with BlueZ.
package advert

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"glycoiq-ble/internal/bluez"
)

// PathBase prefixes advertisement object paths.
const PathBase = "/org/bluez/advertisement"

// Advertisement is an org.bluez.LEAdvertisement1 object.
type Advertisement struct {
	path           dbus.ObjectPath
	adType         string
	serviceUUIDs   []string
	solicitUUIDs   []string
	localName      string
	includeTxPower bool
	timeout        uint16
	log            logrus.FieldLogger
}

// NewAdvertisement describes a connectable peripheral advertisement
// carrying serviceUUIDs and localName.
func NewAdvertisement(index int, localName string, serviceUUIDs []string, log logrus.FieldLogger) *Advertisement {
	uuids := make([]string, len(serviceUUIDs))
	for i, u := range serviceUUIDs {
		uuids[i] = strings.ToUpper(u)
	}
	path := dbus.ObjectPath(fmt.Sprintf("%s%d", PathBase, index))
	return &Advertisement{
		path:         path,
		adType:       "peripheral",
		serviceUUIDs: uuids,
		solicitUUIDs: []string{},
		localName:    localName,
		log:          log.WithField("path", path),
	}
}

// Path returns the D-Bus object path.
func (a *Advertisement) Path() dbus.ObjectPath { return a.path }

// Interface implements bluez.PropertyOwner.
func (a *Advertisement) Interface() string { return bluez.LEAdvertisement1 }

// Properties implements bluez.PropertyOwner.
func (a *Advertisement) Properties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Type":           dbus.MakeVariant(a.adType),
		"ServiceUUIDs":   dbus.MakeVariant(a.serviceUUIDs),
		"SolicitUUIDs":   dbus.MakeVariant(a.solicitUUIDs),
		"LocalName":      dbus.MakeVariant(a.localName),
		"IncludeTxPower": dbus.MakeVariant(a.includeTxPower),
		"Timeout":        dbus.MakeVariant(a.timeout),
	}
}

// Release is called by BlueZ when it drops the advertisement.
func (a *Advertisement) Release() *dbus.Error {
	a.log.Info("Advertisement released")
	return nil
}

// export publishes the advertisement. The object is immutable, so property
// calls are served directly on the godbus goroutine.
func (a *Advertisement) export(exp bluez.Exporter) error {
	if err := exp.Export(a, a.path, bluez.LEAdvertisement1); err != nil {
		return fmt.Errorf("export %s: %w", a.path, err)
	}
	if err := exp.Export(bluez.NewPropertiesObject(a, nil), a.path, bluez.Properties); err != nil {
		return fmt.Errorf("export %s: %w", a.path, err)
	}
	return bluez.ExportIntrospectable(exp, a.path, nil, bluez.PropertiesInterface, bluez.LEAdvertisementInterface)
}
