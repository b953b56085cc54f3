package advert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"glycoiq-ble/internal/bluez"
)

// ErrAdvertisementFailed is returned once every registration attempt failed.
var ErrAdvertisementFailed = errors.New("advertisement registration failed")

// State of the registrar.
type State int

const (
	StatePending State = iota
	StateRegistered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRegistered:
		return "registered"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Manager is the BlueZ LEAdvertisingManager1 surface. *bluez.Adapter
// satisfies it.
type Manager interface {
	RegisterAdvertisement(path dbus.ObjectPath, done func(error)) error
	UnregisterAdvertisement(path dbus.ObjectPath) error
}

// Options configures a Registrar.
type Options struct {
	LocalName    string
	ServiceUUIDs []string
	// Attempts is the total number of registration attempts.
	Attempts int
	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
}

// Registrar registers the advertisement with a bounded number of retries.
type Registrar struct {
	exp  bluez.Exporter
	mgr  Manager
	opts Options
	log  logrus.FieldLogger

	mu      sync.Mutex
	state   State
	current *Advertisement
}

// NewRegistrar creates a registrar in the pending state.
func NewRegistrar(exp bluez.Exporter, mgr Manager, opts Options, log logrus.FieldLogger) *Registrar {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Registrar{
		exp:  exp,
		mgr:  mgr,
		opts: opts,
		log:  log,
	}
}

// State returns the current registration state.
func (r *Registrar) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Register builds, exports and submits a fresh advertisement per attempt,
// waiting Backoff between failed attempts. The BlueZ reply arrives later and
// is only logged. After the last failed attempt it returns an error wrapping
// ErrAdvertisementFailed.
func (r *Registrar) Register(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		log := r.log.WithField("attempt", attempt)

		ad := NewAdvertisement(0, r.opts.LocalName, r.opts.ServiceUUIDs, r.log)
		lastErr = r.submit(ad)
		if lastErr == nil {
			r.mu.Lock()
			r.state = StateRegistered
			r.current = ad
			r.mu.Unlock()
			log.WithField("path", ad.Path()).Info("Advertisement submitted")
			return nil
		}
		log.WithError(lastErr).Warn("Advertisement attempt failed")

		if attempt == r.opts.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			r.setState(StateFailed)
			return fmt.Errorf("%w: %v", ErrAdvertisementFailed, ctx.Err())
		case <-time.After(r.opts.Backoff):
		}
	}

	r.setState(StateFailed)
	r.log.WithField("attempts", r.opts.Attempts).Error("Failed to register advertisement")
	return fmt.Errorf("%w after %d attempts: %v", ErrAdvertisementFailed, r.opts.Attempts, lastErr)
}

// Unregister withdraws the registered advertisement, if any.
func (r *Registrar) Unregister() error {
	r.mu.Lock()
	ad := r.current
	r.current = nil
	if ad != nil {
		r.state = StatePending
	}
	r.mu.Unlock()

	if ad == nil {
		return nil
	}
	if err := r.mgr.UnregisterAdvertisement(ad.Path()); err != nil {
		return fmt.Errorf("unregister %s: %w", ad.Path(), err)
	}
	return nil
}

func (r *Registrar) submit(ad *Advertisement) error {
	if err := ad.export(r.exp); err != nil {
		return err
	}
	return r.mgr.RegisterAdvertisement(ad.Path(), func(err error) {
		if err != nil {
			r.log.WithError(err).Error("Failed to register advertisement")
			return
		}
		r.log.Info("Advertisement registered")
	})
}

func (r *Registrar) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
