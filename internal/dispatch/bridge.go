// Package dispatch turns writes on the command characteristic into runs of
// the external measurement routine and hands the resulting status payload
// back for notification.
//
// HandleWrite is called on the event loop and never blocks: recognized
// commands are queued for a single worker goroutine (Run), which performs
// the bounded subprocess call and passes the payload to the deliver
// callback. Every write produces exactly one payload.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// CommandRunDevice starts a measurement.
const CommandRunDevice = "run_device"

// Outcome classifies a finished dispatch.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeFailed         Outcome = "failed"
	OutcomeNoOutput       Outcome = "no_output"
	OutcomeUnknownCommand Outcome = "unknown_command"
	OutcomeBusy           Outcome = "busy"
)

// Failed reports whether the client received an error payload.
func (o Outcome) Failed() bool {
	return o != OutcomeSuccess
}

// Record describes one dispatch.
type Record struct {
	ID       string    `json:"id"`
	Command  string    `json:"command"`
	Outcome  Outcome   `json:"outcome"`
	Payload  string    `json:"payload"`
	Finished time.Time `json:"finished"`
}

// Stats summarizes dispatch activity.
type Stats struct {
	Total    int     `json:"total"`
	Failures int     `json:"failures"`
	Last     *Record `json:"last,omitempty"`
}

// Options configures a Bridge.
type Options struct {
	// Timeout bounds each measurement run.
	Timeout time.Duration
	// ScriptName names the routine in error payloads, e.g. "device_control.py".
	ScriptName string
	// QueueDepth is how many accepted commands may wait for the worker.
	QueueDepth int
}

type job struct {
	id      string
	command string
}

// Bridge connects the command characteristic to a Runner.
type Bridge struct {
	runner  Runner
	deliver func(payload []byte)
	opts    Options
	jobs    chan job
	log     logrus.FieldLogger

	mu    sync.Mutex
	stats Stats
}

// New creates a bridge. deliver receives every payload and must be safe to
// call from any goroutine.
func New(runner Runner, deliver func(payload []byte), opts Options, log logrus.FieldLogger) *Bridge {
	if opts.QueueDepth < 1 {
		opts.QueueDepth = 1
	}
	if opts.ScriptName == "" {
		opts.ScriptName = "device_control.py"
	}
	return &Bridge{
		runner:  runner,
		deliver: deliver,
		opts:    opts,
		jobs:    make(chan job, opts.QueueDepth),
		log:     log,
	}
}

// HandleWrite interprets value as a UTF-8 command. It implements
// gatt.WriteHandler.
func (b *Bridge) HandleWrite(value []byte) {
	command := strings.TrimSpace(string(value))
	id := newDispatchID()
	log := b.log.WithFields(logrus.Fields{"dispatch_id": id, "command": command})
	log.Info("Received command")

	if command != CommandRunDevice {
		log.Warn("Unknown command rejected")
		b.finish(id, command, OutcomeUnknownCommand, ErrorPayload("Unknown command: "+command))
		return
	}

	select {
	case b.jobs <- job{id: id, command: command}:
	default:
		log.Warn("Measurement already in progress, command rejected")
		b.finish(id, command, OutcomeBusy, ErrorPayload("Measurement already in progress"))
	}
}

// Run services queued commands until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-b.jobs:
			payload, outcome := b.Execute(ctx, j.id)
			b.finish(j.id, j.command, outcome, payload)
		}
	}
}

// Execute performs one bounded measurement run and translates its result
// into the payload for the client.
func (b *Bridge) Execute(ctx context.Context, id string) ([]byte, Outcome) {
	log := b.log.WithField("dispatch_id", id)
	script := b.opts.ScriptName

	runCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	started := time.Now()
	res, err := b.runner.Run(runCtx)
	log.WithFields(logrus.Fields{
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"exit_code": res.ExitCode,
		"duration":  time.Since(started).Round(time.Millisecond).String(),
	}).Info("Measurement finished")

	if errors.Is(err, context.DeadlineExceeded) {
		log.WithField("timeout", b.opts.Timeout).Error("Measurement timed out")
		return ErrorPayload(script + " timed out"), OutcomeTimeout
	}
	if err != nil {
		log.WithError(err).Error("Measurement failed")
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return ErrorPayload(fmt.Sprintf("%s exited with status %d", script, exitErr.Code)), OutcomeFailed
		}
		return ErrorPayload(err.Error()), OutcomeFailed
	}

	output := strings.TrimSpace(res.Stdout)
	if output == "" {
		return ErrorPayload("No output from " + script), OutcomeNoOutput
	}
	return []byte(output), OutcomeSuccess
}

// Stats returns a snapshot of dispatch activity.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return s
}

func (b *Bridge) finish(id, command string, outcome Outcome, payload []byte) {
	b.mu.Lock()
	b.stats.Total++
	if outcome.Failed() {
		b.stats.Failures++
	}
	b.stats.Last = &Record{
		ID:       id,
		Command:  command,
		Outcome:  outcome,
		Payload:  string(payload),
		Finished: time.Now(),
	}
	b.mu.Unlock()

	b.deliver(payload)
}

func newDispatchID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
