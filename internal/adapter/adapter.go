// Package adapter prepares the local Bluetooth controller before the GATT
// tree is published.
package adapter

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// BluetoothUnit is the systemd unit that owns bluetoothd.
const BluetoothUnit = "bluetooth.service"

const defaultExecTimeout = 10 * time.Second

// PropertyStore reads and writes org.bluez.Adapter1 properties.
// *bluez.Adapter satisfies it.
type PropertyStore interface {
	SetProperty(name string, value interface{}) error
	BoolProperty(name string) (bool, error)
}

// UnitChecker reports the ActiveState of a systemd unit.
type UnitChecker interface {
	ActiveState(ctx context.Context, unit string) (string, error)
}

// CommandFunc runs an external command and returns its combined output.
type CommandFunc func(ctx context.Context, name string, args ...string) (string, error)

// Options configures a Bootstrap.
type Options struct {
	// Alias is the friendly name written to the adapter.
	Alias string
	// ResetCommands run in order after the properties are set. Empty skips
	// the reset.
	ResetCommands [][]string
}

// ResetCommands returns the controller reset sequence for hci.
func ResetCommands(hci string) [][]string {
	return [][]string{
		{"hciconfig", hci, "reset"},
		{"hciconfig", hci, "piscan"},
	}
}

// Bootstrap powers the adapter, makes it discoverable and resets the radio.
type Bootstrap struct {
	props PropertyStore
	units UnitChecker
	exec  CommandFunc
	opts  Options
	log   logrus.FieldLogger
}

// New creates a Bootstrap. units may be nil to skip the systemd check.
func New(props PropertyStore, units UnitChecker, opts Options, log logrus.FieldLogger) *Bootstrap {
	return &Bootstrap{
		props: props,
		units: units,
		exec:  execWithTimeout,
		opts:  opts,
		log:   log,
	}
}

// Run configures the adapter. Any property or reset failure is returned and
// is meant to be fatal; there is no retry.
func (b *Bootstrap) Run(ctx context.Context) error {
	b.checkUnit(ctx)

	settings := []struct {
		name  string
		value interface{}
	}{
		{"Powered", true},
		{"Discoverable", true},
		{"Alias", b.opts.Alias},
	}
	for _, s := range settings {
		if err := b.props.SetProperty(s.name, s.value); err != nil {
			return fmt.Errorf("configure adapter: %w", err)
		}
	}

	powered, err := b.props.BoolProperty("Powered")
	if err != nil {
		return fmt.Errorf("configure adapter: %w", err)
	}
	discoverable, err := b.props.BoolProperty("Discoverable")
	if err != nil {
		return fmt.Errorf("configure adapter: %w", err)
	}
	b.log.WithFields(logrus.Fields{
		"powered":      powered,
		"discoverable": discoverable,
	}).Info("Adapter state")

	for _, cmd := range b.opts.ResetCommands {
		if len(cmd) == 0 {
			continue
		}
		out, err := b.exec(ctx, cmd[0], cmd[1:]...)
		if err != nil {
			return fmt.Errorf("reset adapter: %s: %w", strings.Join(cmd, " "), err)
		}
		b.log.WithFields(logrus.Fields{
			"command": strings.Join(cmd, " "),
			"output":  strings.TrimSpace(out),
		}).Debug("Reset command finished")
	}
	if len(b.opts.ResetCommands) > 0 {
		b.log.Info("Adapter reset and set to piscan")
	}
	return nil
}

// checkUnit logs the bluetooth.service state. It never fails the bootstrap.
func (b *Bootstrap) checkUnit(ctx context.Context) {
	if b.units == nil {
		return
	}
	state, err := b.units.ActiveState(ctx, BluetoothUnit)
	if err != nil {
		b.log.WithError(err).Warn("Could not query bluetooth.service")
		return
	}
	entry := b.log.WithField("active_state", state)
	if state != "active" {
		entry.Warn("bluetooth.service is not active")
		return
	}
	entry.Debug("bluetooth.service is active")
}

// execWithTimeout runs a command with a default timeout unless ctx already
// carries a deadline.
func execWithTimeout(ctx context.Context, name string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultExecTimeout)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), fmt.Errorf("command timed out")
	}
	return string(out), err
}
