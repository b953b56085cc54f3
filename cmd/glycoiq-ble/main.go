// GlycoIQ BLE peripheral.
// Exposes the measurement routine as a GATT service over BlueZ.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"glycoiq-ble/internal/adapter"
	"glycoiq-ble/internal/advert"
	"glycoiq-ble/internal/bluez"
	"glycoiq-ble/internal/config"
	"glycoiq-ble/internal/dispatch"
	"glycoiq-ble/internal/logging"
	"glycoiq-ble/internal/loop"
	"glycoiq-ble/internal/peripheral"
	"glycoiq-ble/internal/status"
)

const (
	loopBacklog     = 64
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.WithFields(logrus.Fields{
		"adapter": cfg.Adapter,
		"name":    cfg.Name,
		"script":  cfg.Script,
	}).Info("GlycoIQ BLE starting...")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("GlycoIQ BLE failed")
	}
	log.Info("GlycoIQ BLE stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	hci := bluez.NewAdapter(conn, cfg.Adapter)

	opts := adapter.Options{Alias: cfg.Name}
	if cfg.ResetRadio {
		opts.ResetCommands = adapter.ResetCommands(cfg.Adapter)
	}
	if err := adapter.New(hci, adapter.SystemdUnits{}, opts, log).Run(ctx); err != nil {
		return err
	}

	tree, err := peripheral.Build(conn, log)
	if err != nil {
		return err
	}
	p := peripheral.New(tree, loop.New(loopBacklog),
		dispatch.NewScriptRunner(cfg.Python, cfg.Script, cfg.WorkDir),
		dispatch.Options{Timeout: cfg.DispatchTimeout, ScriptName: cfg.ScriptName()},
		log)
	if err := p.Export(conn); err != nil {
		return err
	}

	loopDone := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(loopDone)
	}()

	log.WithFields(logrus.Fields{
		"adapter": hci.Path(),
		"path":    tree.App.Path(),
	}).Info("Registering GATT application")
	err = hci.RegisterApplication(tree.App.Path(), func(err error) {
		if err != nil {
			log.WithError(err).Error("Failed to register application")
			return
		}
		log.Info("GATT application registered")
	})
	if err != nil {
		return err
	}

	registrar := advert.NewRegistrar(conn, hci, advert.Options{
		LocalName:    cfg.Name,
		ServiceUUIDs: []string{peripheral.ServiceUUID},
		Attempts:     cfg.AdAttempts,
		Backoff:      cfg.AdBackoff,
	}, log)
	if err := registrar.Register(ctx); err != nil {
		return err
	}

	var srv *status.Server
	if cfg.StatusAddr != "" {
		srv = status.NewServer(cfg.StatusAddr, status.NewHandler(status.SourceFunc(func() (status.Report, error) {
			st, err := p.State()
			if err != nil {
				return status.Report{}, err
			}
			return status.Report{
				Advertisement: registrar.State().String(),
				Subscribed:    st.Subscribed,
				LastPayload:   string(st.LastPayload),
				Dispatch:      st.Dispatch,
			}, nil
		}), log))
		ln, err := srv.Listen()
		if err != nil {
			return err
		}
		go func() {
			log.WithField("addr", cfg.StatusAddr).Info("Status endpoint listening")
			if err := srv.Serve(ln); err != nil {
				log.WithError(err).Error("Status endpoint failed")
			}
		}()
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Warn("sd_notify READY failed")
	}
	log.WithField("name", cfg.Name).Info("GATT server running")

	<-ctx.Done()
	log.Info("Shutting down GlycoIQ BLE...")
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Status endpoint shutdown failed")
		}
	}
	if err := registrar.Unregister(); err != nil {
		log.WithError(err).Warn("Failed to unregister advertisement")
	}

	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		log.Warn("Event loop did not stop in time")
	}
	return nil
}
