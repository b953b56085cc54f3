package advert

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glycoiq-ble/internal/bluez"
)

const serviceUUID = "12345678-1234-5678-1234-56789abcdef0"

type exportKey struct {
	path  dbus.ObjectPath
	iface string
}

type fakeExporter struct {
	mu      sync.Mutex
	objects map[exportKey]interface{}
	ads     []*Advertisement
	err     error
}

func (e *fakeExporter) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	if e.objects == nil {
		e.objects = map[exportKey]interface{}{}
	}
	e.objects[exportKey{path, iface}] = v
	if ad, ok := v.(*Advertisement); ok && iface == bluez.LEAdvertisement1 {
		e.ads = append(e.ads, ad)
	}
	return nil
}

func (e *fakeExporter) exported() []*Advertisement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Advertisement(nil), e.ads...)
}

func (e *fakeExporter) get(path dbus.ObjectPath, iface string) interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.objects[exportKey{path, iface}]
}

// fakeManager fails the first failures registration requests.
type fakeManager struct {
	mu           sync.Mutex
	failures     int
	calls        []time.Time
	registered   []dbus.ObjectPath
	unregistered []dbus.ObjectPath
	reply        error
	replied      chan error
}

func (m *fakeManager) RegisterAdvertisement(path dbus.ObjectPath, done func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, time.Now())
	if len(m.calls) <= m.failures {
		return errors.New("org.bluez.Error.Failed")
	}
	m.registered = append(m.registered, path)
	go func() {
		done(m.reply)
		if m.replied != nil {
			m.replied <- m.reply
		}
	}()
	return nil
}

func (m *fakeManager) UnregisterAdvertisement(path dbus.ObjectPath) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregistered = append(m.unregistered, path)
	return nil
}

func (m *fakeManager) callTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.calls...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestRegistrar(exp bluez.Exporter, mgr Manager, backoff time.Duration) *Registrar {
	return NewRegistrar(exp, mgr, Options{
		LocalName:    "GlycoIQ",
		ServiceUUIDs: []string{serviceUUID},
		Attempts:     3,
		Backoff:      backoff,
	}, quietLogger())
}

func TestAdvertisementProperties(t *testing.T) {
	ad := NewAdvertisement(0, "GlycoIQ", []string{serviceUUID}, quietLogger())

	assert.Equal(t, dbus.ObjectPath("/org/bluez/advertisement0"), ad.Path())

	props, err := bluez.GetAll(ad, bluez.LEAdvertisement1)
	require.NoError(t, err)
	assert.Equal(t, "peripheral", props["Type"].Value())
	assert.Equal(t, []string{"12345678-1234-5678-1234-56789ABCDEF0"}, props["ServiceUUIDs"].Value())
	assert.Equal(t, []string{}, props["SolicitUUIDs"].Value())
	assert.Equal(t, "GlycoIQ", props["LocalName"].Value())
	assert.Equal(t, false, props["IncludeTxPower"].Value())
	assert.Equal(t, uint16(0), props["Timeout"].Value())
}

func TestAdvertisementGetAllUnsupported(t *testing.T) {
	ad := NewAdvertisement(0, "GlycoIQ", []string{serviceUUID}, quietLogger())

	_, err := bluez.GetAll(ad, bluez.GattService1)
	var unsupported *bluez.UnsupportedInterfaceError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, bluez.GattService1, unsupported.Interface)

	_, dbusErr := bluez.NewPropertiesObject(ad, nil).GetAll("org.example.Nope")
	require.NotNil(t, dbusErr)
	assert.Equal(t, bluez.ErrUnknownInterface, dbusErr.Name)
}

func TestAdvertisementRelease(t *testing.T) {
	ad := NewAdvertisement(0, "GlycoIQ", nil, quietLogger())
	assert.Nil(t, ad.Release())
}

func TestRegisterFirstAttempt(t *testing.T) {
	exp := &fakeExporter{}
	mgr := &fakeManager{replied: make(chan error, 1)}
	r := newTestRegistrar(exp, mgr, 10*time.Millisecond)

	assert.Equal(t, StatePending, r.State())
	require.NoError(t, r.Register(context.Background()))
	assert.Equal(t, StateRegistered, r.State())
	assert.Len(t, mgr.callTimes(), 1)

	path := dbus.ObjectPath("/org/bluez/advertisement0")
	assert.NotNil(t, exp.get(path, bluez.LEAdvertisement1))
	assert.NotNil(t, exp.get(path, bluez.Properties))
	assert.NotNil(t, exp.get(path, bluez.Introspectable))

	select {
	case <-mgr.replied:
	case <-time.After(time.Second):
		t.Fatal("registration reply not delivered")
	}
}

func TestRegisterRetriesUntilSuccess(t *testing.T) {
	exp := &fakeExporter{}
	mgr := &fakeManager{failures: 1}
	r := newTestRegistrar(exp, mgr, 20*time.Millisecond)

	require.NoError(t, r.Register(context.Background()))
	assert.Equal(t, StateRegistered, r.State())

	calls := mgr.callTimes()
	require.Len(t, calls, 2)
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), 20*time.Millisecond)
}

func TestRegisterExhaustsAttempts(t *testing.T) {
	exp := &fakeExporter{}
	mgr := &fakeManager{failures: 10}
	r := newTestRegistrar(exp, mgr, 20*time.Millisecond)

	err := r.Register(context.Background())
	require.ErrorIs(t, err, ErrAdvertisementFailed)
	assert.Equal(t, StateFailed, r.State())

	calls := mgr.callTimes()
	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), 20*time.Millisecond)
	}

	// Each attempt exports a new advertisement object.
	ads := exp.exported()
	require.Len(t, ads, 3)
	assert.NotSame(t, ads[0], ads[1])
	assert.NotSame(t, ads[1], ads[2])
	assert.NotSame(t, ads[0], ads[2])
	for _, ad := range ads {
		assert.Equal(t, dbus.ObjectPath("/org/bluez/advertisement0"), ad.Path())
	}
}

func TestRegisterExportFailureCountsAsAttempt(t *testing.T) {
	exp := &fakeExporter{err: errors.New("path in use")}
	mgr := &fakeManager{}
	r := newTestRegistrar(exp, mgr, time.Millisecond)

	err := r.Register(context.Background())
	require.ErrorIs(t, err, ErrAdvertisementFailed)
	assert.Empty(t, mgr.callTimes())
	assert.Equal(t, StateFailed, r.State())
}

func TestRegisterCancelledDuringBackoff(t *testing.T) {
	exp := &fakeExporter{}
	mgr := &fakeManager{failures: 10}
	r := newTestRegistrar(exp, mgr, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Register(ctx)
	require.ErrorIs(t, err, ErrAdvertisementFailed)
	assert.Len(t, mgr.callTimes(), 1)
	assert.Equal(t, StateFailed, r.State())
}

func TestAsyncRejectionDoesNotChangeState(t *testing.T) {
	exp := &fakeExporter{}
	mgr := &fakeManager{reply: errors.New("org.bluez.Error.AlreadyExists"), replied: make(chan error, 1)}
	r := newTestRegistrar(exp, mgr, time.Millisecond)

	require.NoError(t, r.Register(context.Background()))
	<-mgr.replied
	assert.Equal(t, StateRegistered, r.State())
}

func TestUnregister(t *testing.T) {
	exp := &fakeExporter{}
	mgr := &fakeManager{}
	r := newTestRegistrar(exp, mgr, time.Millisecond)

	require.NoError(t, r.Unregister())
	assert.Empty(t, mgr.unregistered)

	require.NoError(t, r.Register(context.Background()))
	require.NoError(t, r.Unregister())
	assert.Equal(t, []dbus.ObjectPath{"/org/bluez/advertisement0"}, mgr.unregistered)
	assert.Equal(t, StatePending, r.State())

	require.NoError(t, r.Unregister())
	assert.Len(t, mgr.unregistered, 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "registered", StateRegistered.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "State(9)", State(9).String())
}
