package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

func arg(name, typ, dir string) introspect.Arg {
	return introspect.Arg{Name: name, Type: typ, Direction: dir}
}

// PropertiesInterface describes org.freedesktop.DBus.Properties.
var PropertiesInterface = introspect.Interface{
	Name: Properties,
	Methods: []introspect.Method{
		{Name: "Get", Args: []introspect.Arg{arg("interface", "s", "in"), arg("name", "s", "in"), arg("value", "v", "out")}},
		{Name: "GetAll", Args: []introspect.Arg{arg("interface", "s", "in"), arg("properties", "a{sv}", "out")}},
		{Name: "Set", Args: []introspect.Arg{arg("interface", "s", "in"), arg("name", "s", "in"), arg("value", "v", "in")}},
	},
	Signals: []introspect.Signal{
		{Name: "PropertiesChanged", Args: []introspect.Arg{arg("interface", "s", ""), arg("changed", "a{sv}", ""), arg("invalidated", "as", "")}},
	},
}

// ObjectManagerInterface describes org.freedesktop.DBus.ObjectManager.
var ObjectManagerInterface = introspect.Interface{
	Name: ObjectManager,
	Methods: []introspect.Method{
		{Name: "GetManagedObjects", Args: []introspect.Arg{arg("objects", "a{oa{sa{sv}}}", "out")}},
	},
}

// GattServiceInterface describes org.bluez.GattService1, which is property-only.
var GattServiceInterface = introspect.Interface{Name: GattService1}

// GattCharacteristicInterface describes org.bluez.GattCharacteristic1.
var GattCharacteristicInterface = introspect.Interface{
	Name: GattCharacteristic1,
	Methods: []introspect.Method{
		{Name: "ReadValue", Args: []introspect.Arg{arg("options", "a{sv}", "in"), arg("value", "ay", "out")}},
		{Name: "WriteValue", Args: []introspect.Arg{arg("value", "ay", "in"), arg("options", "a{sv}", "in")}},
		{Name: "StartNotify"},
		{Name: "StopNotify"},
	},
}

// LEAdvertisementInterface describes org.bluez.LEAdvertisement1.
var LEAdvertisementInterface = introspect.Interface{
	Name:    LEAdvertisement1,
	Methods: []introspect.Method{{Name: "Release"}},
}

// ExportIntrospectable publishes Introspect data for path listing the given
// child node names and interfaces.
func ExportIntrospectable(exp Exporter, path dbus.ObjectPath, children []string, ifaces ...introspect.Interface) error {
	node := &introspect.Node{
		Name:       string(path),
		Interfaces: append([]introspect.Interface{introspect.IntrospectData}, ifaces...),
	}
	for _, child := range children {
		node.Children = append(node.Children, introspect.Node{Name: child})
	}
	if err := exp.Export(introspect.NewIntrospectable(node), path, Introspectable); err != nil {
		return fmt.Errorf("export introspection for %s: %w", path, err)
	}
	return nil
}
