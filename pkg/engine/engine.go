// Package engine runs a panel's two handlers on one event loop. Inbound
// display and request commands and local user interactions are queued in
// arrival order and applied one at a time, each to completion.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/panel/pkg/bus"
	apperrors "github.com/odvcencio/panel/pkg/errors"
	"github.com/odvcencio/panel/pkg/logging"
	"github.com/odvcencio/panel/pkg/panel"
	"github.com/odvcencio/panel/pkg/telemetry"
)

const defaultQueueSize = 128

// Subjects names the bus subjects a panel uses.
type Subjects struct {
	Display  string
	Request  string
	Response string
}

// DefaultSubjects returns the subjects used when none are configured.
func DefaultSubjects() Subjects {
	return Subjects{
		Display:  "panel.view",
		Request:  "panel.request",
		Response: "panel.response",
	}
}

// Options configures an Engine.
type Options struct {
	Subjects Subjects

	// StartControl is exempt from bound-input value copying.
	StartControl string
	// BoundInput is the input whose value buttons report when activated.
	BoundInput string

	// InstanceID distinguishes panels sharing one bus. Generated when empty.
	InstanceID string
	QueueSize  int

	Logger *logging.Logger
	Hub    *telemetry.Hub
	// Tracer records one span per job. Defaults to a no-op tracer.
	Tracer trace.Tracer
}

type job struct {
	id   string
	kind string
	run  func() error
	done chan error
	at   time.Time

	// parent links the job span to the caller's trace, if any.
	parent trace.SpanContext
}

// Engine owns one panel and serializes every access to it.
type Engine struct {
	panel      *panel.Panel
	reconciler *Reconciler
	controller *Controller

	bus    bus.MessageBus
	opts   Options
	logger *logging.Logger

	jobs chan job
	quit chan struct{}
	once sync.Once

	mu   sync.Mutex
	subs []bus.Subscription
}

// New creates an engine for p publishing outbound events on b. Run must be
// started before any handler call can complete.
func New(p *panel.Panel, b bus.MessageBus, opts Options) *Engine {
	defaults := DefaultSubjects()
	if opts.Subjects.Display == "" {
		opts.Subjects.Display = defaults.Display
	}
	if opts.Subjects.Request == "" {
		opts.Subjects.Request = defaults.Request
	}
	if opts.Subjects.Response == "" {
		opts.Subjects.Response = defaults.Response
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NoopTracer()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	e := &Engine{
		bus:    b,
		opts:   opts,
		logger: logger.WithPanel(opts.InstanceID),
		jobs:   make(chan job, opts.QueueSize),
		quit:   make(chan struct{}),
	}
	e.attach(p)
	return e
}

// InstanceID returns the panel instance identifier.
func (e *Engine) InstanceID() string {
	return e.opts.InstanceID
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) attach(p *panel.Panel) {
	e.panel = p
	e.reconciler = NewReconciler(p)
	e.controller = NewController(p, e.opts.StartControl, e.publish)
	telemetry.SetInteractionEnabled(!p.Gate.IsDisabled())
}

// Run drains the job queue until ctx is done or Close is called.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.quit:
			return nil
		case j := <-e.jobs:
			j.done <- e.execute(j)
		}
	}
}

func (e *Engine) execute(j job) (err error) {
	parent := trace.ContextWithSpanContext(context.Background(), j.parent)
	_, span := e.opts.Tracer.Start(parent, "panel."+j.kind,
		trace.WithTimestamp(j.at),
		trace.WithAttributes(
			telemetry.AttrPanelID.String(e.opts.InstanceID),
			telemetry.AttrJobID.String(j.id),
			telemetry.AttrJobKind.String(j.kind),
		),
	)
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Newf(apperrors.ErrCodeInternal, "%s job panicked: %v", j.kind, r).
				WithContext("job_id", j.id)
		}
		code := ""
		if err != nil {
			code = string(apperrors.GetCode(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, code)
			span.SetAttributes(telemetry.AttrErrorCode.String(code))
		}
		span.End()
		telemetry.ObserveCommand(j.kind, j.at, code)
		telemetry.SetInteractionEnabled(!e.panel.Gate.IsDisabled())
	}()
	return j.run()
}

// submit queues fn and waits for its result. A job that has started always
// completes; a cancelled ctx only stops the wait.
func (e *Engine) submit(ctx context.Context, kind string, fn func() error) error {
	j := job{
		id:   ulid.Make().String(),
		kind: kind,
		run:  fn,
		done: make(chan error, 1),
		at:   time.Now(),

		parent: trace.SpanContextFromContext(ctx),
	}

	select {
	case <-e.quit:
		return apperrors.New(apperrors.ErrCodeEngineClosed, "engine closed")
	default:
	}

	select {
	case e.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return apperrors.New(apperrors.ErrCodeEngineClosed, "engine closed")
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return apperrors.New(apperrors.ErrCodeEngineClosed, "engine closed")
	}
}

// Display applies an inbound display command.
func (e *Engine) Display(ctx context.Context, payload []byte) error {
	return e.inbound(ctx, KindDisplay, payload, func(cmd Command) error {
		return e.reconciler.ApplyDisplay(cmd)
	})
}

// Request applies an inbound request command.
func (e *Engine) Request(ctx context.Context, payload []byte) error {
	return e.inbound(ctx, KindRequest, payload, func(cmd Command) error {
		return e.reconciler.ApplyRequest(cmd)
	})
}

func (e *Engine) inbound(ctx context.Context, kind string, payload []byte, apply func(Command) error) error {
	// Decode on the loop; malformed payloads are commands too.
	return e.submit(ctx, kind, func() error {
		cmd, err := DecodeCommand(payload)
		if err != nil {
			e.rejected(kind, "", err)
			return err
		}
		if err := apply(cmd); err != nil {
			e.rejected(kind, cmd.ComponentID, err)
			return err
		}
		e.logger.CommandApplied(kind, cmd.ComponentID, len(cmd.SetContent))
		e.opts.Hub.Publish(telemetry.Event{
			Type:        telemetry.EventCommandApplied,
			PanelID:     e.opts.InstanceID,
			ComponentID: cmd.ComponentID,
			Data: map[string]any{
				"kind":        kind,
				"set_content": cmd.SetContent,
			},
		})
		return nil
	})
}

// Activate handles a user activation of componentID. boundInput overrides
// the configured bound input when non-empty.
func (e *Engine) Activate(ctx context.Context, componentID, boundInput string) (OutboundEvent, error) {
	if boundInput == "" {
		boundInput = e.opts.BoundInput
	}
	var event OutboundEvent
	err := e.submit(ctx, KindActivate, func() error {
		if e.panel.Gate.IsDisabled() {
			telemetry.ActivationsWhileDisabled.Inc()
			e.logger.Debug("activation while interaction disabled", "component_id", componentID)
		}
		ev, err := e.controller.OnActivate(componentID, boundInput)
		if err != nil {
			e.rejected(KindActivate, componentID, err)
			// Only a failed publish still counts as an activation.
			if !apperrors.IsCode(err, apperrors.ErrCodeTransport) {
				return err
			}
		}
		event = ev
		e.opts.Hub.Publish(telemetry.Event{
			Type:        telemetry.EventActivated,
			PanelID:     e.opts.InstanceID,
			ComponentID: ev.ComponentID,
			Data:        map[string]any{"set_view": ev.SetView},
		})
		return err
	})
	return event, err
}

// Input records text typed into an input node.
func (e *Engine) Input(ctx context.Context, componentID, value string) error {
	return e.submit(ctx, KindInput, func() error {
		if err := e.controller.OnInput(componentID, value); err != nil {
			e.rejected(KindInput, componentID, err)
			return err
		}
		e.opts.Hub.Publish(telemetry.Event{
			Type:        telemetry.EventInputChanged,
			PanelID:     e.opts.InstanceID,
			ComponentID: componentID,
		})
		return nil
	})
}

// Snapshot returns a copy of the panel state as of this point in the queue.
func (e *Engine) Snapshot(ctx context.Context) (panel.Snapshot, error) {
	var snap panel.Snapshot
	err := e.submit(ctx, KindSnapshot, func() error {
		snap = e.panel.Snapshot()
		return nil
	})
	return snap, err
}

// Replace swaps in a freshly built panel. Commands already queued before
// the swap apply to the old panel.
func (e *Engine) Replace(ctx context.Context, p *panel.Panel) error {
	if p == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "replace with nil panel")
	}
	return e.submit(ctx, KindReload, func() error {
		e.attach(p)
		e.opts.Hub.Publish(telemetry.Event{
			Type:    telemetry.EventLayoutReloaded,
			PanelID: e.opts.InstanceID,
			Data:    map[string]any{"nodes": p.Index.Len()},
		})
		return nil
	})
}

// Start subscribes the inbound handlers to the display and request subjects.
// Both subjects share one subscription so commands reach the loop in the
// order the bus delivered them, whichever subject carried them.
func (e *Engine) Start(ctx context.Context) error {
	if e.bus == nil {
		return apperrors.New(apperrors.ErrCodeTransport, "engine has no bus")
	}
	subjects := []string{e.opts.Subjects.Display, e.opts.Subjects.Request}
	sub, err := e.bus.SubscribeMany(ctx, subjects, func(msg *bus.Message) {
		// Errors are logged and counted inside the job.
		switch {
		case bus.MatchSubject(e.opts.Subjects.Display, msg.Subject):
			_ = e.Display(ctx, msg.Data)
		case bus.MatchSubject(e.opts.Subjects.Request, msg.Subject):
			_ = e.Request(ctx, msg.Data)
		default:
			e.logger.Debug("message on unexpected subject", "subject", msg.Subject)
		}
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "subscribe").
			WithContext("subjects", strings.Join(subjects, ","))
	}
	e.mu.Lock()
	e.subs = append(e.subs, sub)
	e.mu.Unlock()

	e.logger.Info("engine subscribed",
		"display", e.opts.Subjects.Display,
		"request", e.opts.Subjects.Request,
		"response", e.opts.Subjects.Response,
	)
	return nil
}

// Close stops the loop and drops bus subscriptions. Pending callers receive
// ENGINE_CLOSED. The bus itself is left open.
func (e *Engine) Close() error {
	e.once.Do(func() {
		close(e.quit)
		e.unsubscribeAll()
	})
	return nil
}

func (e *Engine) unsubscribeAll() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			e.logger.Warn("unsubscribe failed", "subject", sub.Subject(), "error", err)
		}
	}
}

// publish runs on the loop from Controller.OnActivate.
func (e *Engine) publish(event OutboundEvent) error {
	if e.bus == nil {
		return nil
	}
	data, err := event.Encode()
	if err != nil {
		return err
	}
	if err := e.bus.Publish(context.Background(), e.opts.Subjects.Response, data); err != nil {
		return err
	}
	telemetry.OutboundEvents.Inc()
	e.logger.EventPublished(e.opts.Subjects.Response, event.ComponentID, event.SetView)
	return nil
}

func (e *Engine) rejected(kind, componentID string, err error) {
	code := string(apperrors.GetCode(err))
	e.logger.CommandRejected(kind, code, err)
	e.opts.Hub.Publish(telemetry.Event{
		Type:        telemetry.EventCommandRejected,
		PanelID:     e.opts.InstanceID,
		ComponentID: componentID,
		Data: map[string]any{
			"kind":  kind,
			"code":  code,
			"error": err.Error(),
		},
	})
}
