package adapter

import (
	"context"
	"fmt"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
)

// SystemdUnits queries unit state over the systemd D-Bus API.
type SystemdUnits struct{}

// ActiveState implements UnitChecker.
func (SystemdUnits) ActiveState(ctx context.Context, unit string) (string, error) {
	conn, err := sddbus.NewWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return "", fmt.Errorf("get unit properties for %s: %w", unit, err)
	}
	state, ok := props["ActiveState"].(string)
	if !ok {
		return "", fmt.Errorf("unit %s has no ActiveState", unit)
	}
	return state, nil
}
