package adapter

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProps struct {
	values map[string]interface{}
	sets   []string
	setErr map[string]error
	getErr error
}

func newFakeProps() *fakeProps {
	return &fakeProps{values: map[string]interface{}{}, setErr: map[string]error{}}
}

func (p *fakeProps) SetProperty(name string, value interface{}) error {
	if err := p.setErr[name]; err != nil {
		return err
	}
	p.sets = append(p.sets, name)
	p.values[name] = value
	return nil
}

func (p *fakeProps) BoolProperty(name string) (bool, error) {
	if p.getErr != nil {
		return false, p.getErr
	}
	v, _ := p.values[name].(bool)
	return v, nil
}

type fakeUnits struct {
	state string
	err   error
	units []string
}

func (u *fakeUnits) ActiveState(_ context.Context, unit string) (string, error) {
	u.units = append(u.units, unit)
	return u.state, u.err
}

type commandLog struct {
	ran  []string
	fail string
}

func (c *commandLog) run(_ context.Context, name string, args ...string) (string, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	c.ran = append(c.ran, line)
	if line == c.fail {
		return "Can't init device hci0", errors.New("exit status 1")
	}
	return "", nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestBootstrap(props PropertyStore, units UnitChecker, cmds *commandLog, log logrus.FieldLogger) *Bootstrap {
	b := New(props, units, Options{Alias: "GlycoIQ", ResetCommands: ResetCommands("hci0")}, log)
	b.exec = cmds.run
	return b
}

func TestBootstrapConfiguresAdapter(t *testing.T) {
	props := newFakeProps()
	units := &fakeUnits{state: "active"}
	cmds := &commandLog{}

	require.NoError(t, newTestBootstrap(props, units, cmds, quietLogger()).Run(context.Background()))

	assert.Equal(t, []string{"Powered", "Discoverable", "Alias"}, props.sets)
	assert.Equal(t, true, props.values["Powered"])
	assert.Equal(t, true, props.values["Discoverable"])
	assert.Equal(t, "GlycoIQ", props.values["Alias"])
	assert.Equal(t, []string{"hciconfig hci0 reset", "hciconfig hci0 piscan"}, cmds.ran)
	assert.Equal(t, []string{BluetoothUnit}, units.units)
}

func TestBootstrapLogsReadback(t *testing.T) {
	log, hook := test.NewNullLogger()
	props := newFakeProps()

	require.NoError(t, newTestBootstrap(props, nil, &commandLog{}, log).Run(context.Background()))

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Adapter state" {
			found = true
			assert.Equal(t, true, e.Data["powered"])
			assert.Equal(t, true, e.Data["discoverable"])
		}
	}
	assert.True(t, found)
}

func TestBootstrapSetFailureIsFatal(t *testing.T) {
	props := newFakeProps()
	props.setErr["Discoverable"] = errors.New("org.bluez.Error.Failed")
	cmds := &commandLog{}

	err := newTestBootstrap(props, nil, cmds, quietLogger()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "org.bluez.Error.Failed")
	assert.Equal(t, []string{"Powered"}, props.sets)
	assert.Empty(t, cmds.ran)
}

func TestBootstrapReadbackFailureIsFatal(t *testing.T) {
	props := newFakeProps()
	props.getErr = errors.New("no reply")

	err := newTestBootstrap(props, nil, &commandLog{}, quietLogger()).Run(context.Background())
	assert.Error(t, err)
}

func TestBootstrapResetFailureIsFatal(t *testing.T) {
	cmds := &commandLog{fail: "hciconfig hci0 reset"}

	err := newTestBootstrap(newFakeProps(), nil, cmds, quietLogger()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hciconfig hci0 reset")
	assert.Equal(t, []string{"hciconfig hci0 reset"}, cmds.ran)
}

func TestBootstrapWithoutResetCommands(t *testing.T) {
	cmds := &commandLog{}
	b := New(newFakeProps(), nil, Options{Alias: "GlycoIQ"}, quietLogger())
	b.exec = cmds.run

	require.NoError(t, b.Run(context.Background()))
	assert.Empty(t, cmds.ran)
}

func TestBootstrapUnitCheckIsAdvisory(t *testing.T) {
	tests := []struct {
		name  string
		units *fakeUnits
		level logrus.Level
	}{
		{"QueryFails", &fakeUnits{err: errors.New("no systemd")}, logrus.WarnLevel},
		{"Inactive", &fakeUnits{state: "inactive"}, logrus.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, hook := test.NewNullLogger()
			require.NoError(t, newTestBootstrap(newFakeProps(), tt.units, &commandLog{}, log).Run(context.Background()))
			require.NotEmpty(t, hook.AllEntries())
			assert.Equal(t, tt.level, hook.AllEntries()[0].Level)
		})
	}
}

func TestExecWithTimeout(t *testing.T) {
	out, err := execWithTimeout(context.Background(), "/bin/sh", "-c", "echo up")
	require.NoError(t, err)
	assert.Equal(t, "up\n", out)

	_, err = execWithTimeout(context.Background(), "/bin/sh", "-c", "exit 2")
	assert.Error(t, err)
}
