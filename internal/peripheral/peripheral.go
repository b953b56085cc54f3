// Package peripheral assembles the GlycoIQ GATT tree and connects the
// command characteristic to the dispatch bridge.
package peripheral

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"glycoiq-ble/internal/bluez"
	"glycoiq-ble/internal/dispatch"
	"glycoiq-ble/internal/gatt"
	"glycoiq-ble/internal/loop"
)

// Fixed GATT identifiers.
const (
	ServiceUUID = "00000000-8cb1-44ce-9a66-001dca0941a6"
	CommandUUID = "00000001-8cb1-44ce-9a66-001dca0941a6"
	ResultUUID  = "00000002-8cb1-44ce-9a66-001dca0941a6"
)

// Tree is the published object tree.
type Tree struct {
	App     *gatt.Application
	Service *gatt.Service
	Command *gatt.Characteristic
	Result  *gatt.Characteristic
}

// Build creates the application with one primary service holding the
// write-only command characteristic and the read+notify result
// characteristic.
func Build(emitter bluez.Emitter, log logrus.FieldLogger) (*Tree, error) {
	app := gatt.NewApplication(emitter, log)

	svc, err := app.AddService(ServiceUUID, true)
	if err != nil {
		return nil, fmt.Errorf("build service: %w", err)
	}
	cmd, err := svc.AddCharacteristic(CommandUUID, gatt.FlagWrite)
	if err != nil {
		return nil, fmt.Errorf("build command characteristic: %w", err)
	}
	res, err := svc.AddCharacteristic(ResultUUID, gatt.FlagRead, gatt.FlagNotify)
	if err != nil {
		return nil, fmt.Errorf("build result characteristic: %w", err)
	}

	return &Tree{App: app, Service: svc, Command: cmd, Result: res}, nil
}

// State is a point-in-time view of the peripheral.
type State struct {
	Subscribed  bool
	LastPayload []byte
	Dispatch    dispatch.Stats
}

// Peripheral owns the tree, the event loop and the dispatch bridge.
type Peripheral struct {
	tree   *Tree
	loop   *loop.Loop
	bridge *dispatch.Bridge
	log    logrus.FieldLogger
}

// New wires the command characteristic to a dispatch bridge whose results
// are posted back onto lp and notified on the result characteristic.
func New(tree *Tree, lp *loop.Loop, runner dispatch.Runner, opts dispatch.Options, log logrus.FieldLogger) *Peripheral {
	p := &Peripheral{
		tree: tree,
		loop: lp,
		log:  log,
	}
	p.bridge = dispatch.New(runner, p.deliver, opts, log)
	tree.Command.HandleWrite(p.bridge)
	return p
}

// Tree returns the object tree.
func (p *Peripheral) Tree() *Tree { return p.tree }

// Export publishes the tree on exp. Every D-Bus handler runs on the loop.
func (p *Peripheral) Export(exp bluez.Exporter) error {
	return gatt.Export(exp, p.tree.App, p.loop.Do)
}

// Run starts the event loop and the dispatch worker and blocks until ctx
// is cancelled and the loop has stopped.
func (p *Peripheral) Run(ctx context.Context) {
	go p.bridge.Run(ctx)
	p.loop.Run(ctx)
}

// State reads the result characteristic on the loop and adds the dispatch
// counters.
func (p *Peripheral) State() (State, error) {
	var st State
	err := p.loop.Do(func() {
		st.Subscribed = p.tree.Result.Notifying()
		st.LastPayload = p.tree.Result.Value()
	})
	if err != nil {
		return State{}, err
	}
	st.Dispatch = p.bridge.Stats()
	return st, nil
}

func (p *Peripheral) deliver(payload []byte) {
	if !p.loop.Post(func() { p.tree.Result.Notify(payload) }) {
		p.log.Warn("Event loop stopped, dropping result")
	}
}
