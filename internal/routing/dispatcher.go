// Package routing dispatches generation requests across the eligible slots
// of a task class: round-robin or hinted ordering, bounded same-slot
// retries, and rotation driven by the failure classifier.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"slotgateway/internal/classify"
	"slotgateway/internal/logger"
	"slotgateway/internal/metrics"
	"slotgateway/internal/models"
	"slotgateway/internal/observability"
	"slotgateway/internal/provider"
	"slotgateway/internal/slots"
)

// Body ceiling bounds.
const (
	DefaultMaxBodyBytes = 900000
	MinBodyBytes        = 100000
	MaxBodyBytesCeiling = 2 * 1024 * 1024

	DefaultSameSlotRetries = 3
)

// ClampBodyBytes applies the default and bounds to a configured body ceiling.
func ClampBodyBytes(n int) int {
	if n <= 0 {
		return DefaultMaxBodyBytes
	}
	if n < MinBodyBytes {
		return MinBodyBytes
	}
	if n > MaxBodyBytesCeiling {
		return MaxBodyBytesCeiling
	}
	return n
}

type Config struct {
	SameSlotRetries int
	MaxBodyBytes    int
}

// Request is one dispatch input.
type Request struct {
	Messages []models.Message
	Options  models.GenerationOptions
	Class    models.TaskClass
	// Hint selects candidate Hint mod n first.
	Hint      *int
	RequestID string
}

// Result is a successful dispatch.
type Result struct {
	Text     string
	SlotID   int
	Provider string
	Model    string
	Usage    models.Usage
	Attempts []models.Attempt
	// Fallback is set when reserved traffic ran on tagged slots that are not activated.
	Fallback bool
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Counter receives one increment per successful upstream call made through a slot.
type Counter interface {
	Incr(ctx context.Context, slotID int) (int64, error)
}

type Option func(*Dispatcher)

func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) { d.sleep = s }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

func WithCounter(c Counter) Option {
	return func(d *Dispatcher) { d.counter = c }
}

// cursor holds the committed start position of a class. inflight counts
// dispatches that claimed a start but have not finished, so concurrent
// requests begin on successive slots.
type cursor struct {
	mu       sync.Mutex
	next     int
	inflight int
}

// claim returns the start position for a new dispatch.
func (c *cursor) claim() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := c.next + c.inflight
	c.inflight++
	return start
}

func (c *cursor) release() {
	c.mu.Lock()
	if c.inflight > 0 {
		c.inflight--
	}
	c.mu.Unlock()
}

// Dispatcher owns the per-class round-robin cursors. It is safe for concurrent use.
type Dispatcher struct {
	pool     *slots.Pool
	adapters *provider.Registry
	cfg      Config
	sleep    Sleeper
	metrics  *metrics.Collector
	counter  Counter
	log      *slog.Logger

	cursors map[models.TaskClass]*cursor
}

func New(pool *slots.Pool, adapters *provider.Registry, cfg Config, opts ...Option) *Dispatcher {
	if cfg.SameSlotRetries <= 0 {
		cfg.SameSlotRetries = DefaultSameSlotRetries
	}
	cfg.MaxBodyBytes = ClampBodyBytes(cfg.MaxBodyBytes)

	d := &Dispatcher{
		pool:     pool,
		adapters: adapters,
		cfg:      cfg,
		sleep:    contextSleep,
		log:      logger.WithComponent("dispatcher"),
		cursors: map[models.TaskClass]*cursor{
			models.TaskGeneral:  {},
			models.TaskReserved: {},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Cursor returns the current round-robin position of a class.
func (d *Dispatcher) Cursor(class models.TaskClass) int {
	c := d.cursorFor(class)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// ResetCursors rewinds every class cursor to the first position.
func (d *Dispatcher) ResetCursors() {
	for _, c := range d.cursors {
		c.mu.Lock()
		c.next = 0
		c.mu.Unlock()
	}
}

func (d *Dispatcher) cursorFor(class models.TaskClass) *cursor {
	if c, ok := d.cursors[class]; ok {
		return c
	}
	return d.cursors[models.TaskGeneral]
}

// Dispatch serves req from the eligible slots of its class in a single pass.
// Only the terminal outcome surfaces: a Result, an *Error, or the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	class := req.Class
	if class != models.TaskReserved {
		class = models.TaskGeneral
	}
	log := d.log.With("class", string(class))
	if req.RequestID != "" {
		log = log.With("request_id", req.RequestID)
	}

	elig := d.pool.Eligible(class)
	if len(elig.Slots) == 0 {
		d.recordDispatch(class, KindNoEligibleSlots)
		return Result{}, &Error{Kind: KindNoEligibleSlots, Message: "no configured slot is eligible for " + string(class) + " traffic"}
	}
	if elig.Fallback {
		log.Warn("reserved traffic falling back to non-activated tagged slots", "slots", slotIDs(elig.Slots))
	}

	cur := d.cursorFor(class)
	var order []candidate
	if req.Hint != nil {
		order = serveOrder(elig.Slots, 0, req.Hint)
	} else {
		order = serveOrder(elig.Slots, cur.claim(), nil)
		defer cur.release()
	}

	ctx, span := observability.StartDispatchSpan(ctx, string(class), len(order), req.Hint)

	maxTokens, err := d.precheck(req, order[0].slot.Model)
	if err != nil {
		d.recordDispatch(class, KindPayloadTooLarge)
		observability.EndWithClassification(span, string(KindPayloadTooLarge), err)
		return Result{}, err
	}

	res := Result{Fallback: elig.Fallback}
	var (
		last     classify.Classification
		lastMsg  string
		lastSlot int
	)

	for _, c := range order {
		s := c.slot
		slotLog := log.With("slot_id", s.ID, "provider", string(s.Kind))

		adapter, err := d.adapters.Get(s.Kind)
		if err != nil {
			last, lastMsg, lastSlot = classify.Classification{Kind: classify.Unclassified}, err.Error(), s.ID
			res.Attempts = append(res.Attempts, models.Attempt{
				SlotID: s.ID, Provider: string(s.Kind), Model: s.Model,
				Status: "error", Classification: last.Kind.String(), Error: err.Error(),
			})
			if len(order) == 1 {
				return d.fail(span, class, &Error{Kind: KindUnclassified, Classification: last, Message: lastMsg, SlotID: s.ID}, res)
			}
			continue
		}

		call := provider.Call{
			Credential:  s.Credential,
			Model:       s.Model,
			Messages:    req.Messages,
			Temperature: req.Options.Temperature,
			MaxTokens:   maxTokens,
		}

	retries:
		for attempt := 1; attempt <= d.cfg.SameSlotRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				observability.EndWithClassification(span, "canceled", err)
				return res, err
			}

			out := d.attempt(ctx, adapter, s, call, attempt)
			comp, cls, callErr, elapsed := out.completion, out.classification, out.err, out.elapsed
			if callErr == nil {
				res.Attempts = append(res.Attempts, models.Attempt{
					SlotID: s.ID, Provider: string(s.Kind), Model: s.Model,
					Status: "success", DurationMs: elapsed.Milliseconds(),
				})
				d.advance(cur, c.pos, len(order))
				res.Text, res.SlotID, res.Provider, res.Usage = comp.Text, s.ID, string(s.Kind), comp.Usage
				res.Model = comp.Model
				if res.Model == "" {
					res.Model = s.Model
				}
				slotLog.Info("dispatch served", "attempts", len(res.Attempts))
				d.recordDispatch(class, "success")
				observability.RecordTokenUsage(span, comp.Usage.PromptTokens, comp.Usage.CompletionTokens)
				observability.EndWithClassification(span, "", nil)
				return res, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(callErr, ctxErr) {
				observability.EndWithClassification(span, "canceled", ctxErr)
				return res, ctxErr
			}

			last, lastMsg, lastSlot = cls, upstreamMessage(callErr), s.ID
			res.Attempts = append(res.Attempts, models.Attempt{
				SlotID: s.ID, Provider: string(s.Kind), Model: s.Model,
				Status: "error", Classification: cls.Kind.String(), Error: lastMsg,
				DurationMs: elapsed.Milliseconds(),
			})
			slotLog.Warn("slot attempt failed",
				"attempt", attempt,
				"classification", cls.String(),
				"error", lastMsg,
			)

			switch {
			case cls.Kind.Rotates():
				break retries
			case cls.Kind == classify.PerMinuteRateLimit:
				if attempt == d.cfg.SameSlotRetries {
					break retries
				}
				if err := d.sleep(ctx, time.Duration(cls.WaitSeconds)*time.Second); err != nil {
					observability.EndWithClassification(span, "canceled", err)
					return res, err
				}
			default:
				if len(order) == 1 {
					return d.fail(span, class, &Error{
						Kind:           kindOf(cls.Kind),
						Classification: cls,
						Message:        lastMsg,
						SlotID:         s.ID,
					}, res)
				}
			}
		}
	}

	e := &Error{
		Kind:           KindAllSlotsExhausted,
		Classification: last,
		Message:        lastMsg,
		SlotID:         lastSlot,
	}
	if last.Kind == classify.PerMinuteRateLimit {
		e.WaitSeconds = last.WaitSeconds
	}
	return d.fail(span, class, e, res)
}

// precheck rejects oversized bodies and applies the token budget,
// returning the max tokens to send upstream.
func (d *Dispatcher) precheck(req Request, model string) (int, error) {
	maxTokens := req.Options.MaxTokens
	size, err := models.BodySize(models.ChatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Options.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return 0, fmt.Errorf("encoding request body: %w", err)
	}
	if size > d.cfg.MaxBodyBytes {
		return 0, &Error{
			Kind:           KindPayloadTooLarge,
			Classification: classify.Classification{Kind: classify.PayloadTooLarge},
			Message:        fmt.Sprintf("request body is %d bytes, limit is %d", size, d.cfg.MaxBodyBytes),
		}
	}

	if budget := req.Options.TokenBudget; budget > 0 {
		remaining := budget - size/4
		if remaining <= 0 {
			return 0, &Error{
				Kind:           KindPayloadTooLarge,
				Classification: classify.Classification{Kind: classify.PayloadTooLarge},
				Message:        fmt.Sprintf("prompt of about %d tokens leaves nothing of a %d token budget", size/4, budget),
			}
		}
		if maxTokens <= 0 || remaining < maxTokens {
			maxTokens = remaining
		}
	}
	return maxTokens, nil
}

type outcome struct {
	completion     provider.Completion
	classification classify.Classification
	err            error
	elapsed        time.Duration
}

func (d *Dispatcher) attempt(ctx context.Context, adapter provider.Adapter, s slots.Slot, call provider.Call, n int) outcome {
	actx, span := observability.StartAttemptSpan(ctx, s.ID, string(s.Kind), s.Model, n)
	start := time.Now()
	comp, err := adapter.Complete(actx, call)
	out := outcome{completion: comp, err: err, elapsed: time.Since(start)}

	if err == nil && d.counter != nil {
		if _, cerr := d.counter.Incr(ctx, s.ID); cerr != nil {
			d.log.Debug("slot call counter unavailable", "slot_id", s.ID, "error", cerr.Error())
		}
	}

	label := ""
	if err != nil {
		out.classification = classifyError(err)
		label = out.classification.Kind.String()
	}
	if d.metrics != nil {
		d.metrics.RecordAttempt(s.ID, string(s.Kind), out.elapsed, label)
	}
	observability.EndWithClassification(span, label, err)
	return out
}

func (d *Dispatcher) advance(c *cursor, pos, n int) {
	c.mu.Lock()
	c.next = (pos + 1) % n
	c.mu.Unlock()
}

func (d *Dispatcher) fail(span trace.Span, class models.TaskClass, e *Error, res Result) (Result, error) {
	d.recordDispatch(class, e.Kind)
	d.log.Warn("dispatch failed",
		"class", string(class),
		"kind", string(e.Kind),
		"slot_id", e.SlotID,
		"classification", e.Classification.String(),
		"attempts", len(res.Attempts),
	)
	observability.EndWithClassification(span, string(e.Kind), e)
	return res, e
}

func (d *Dispatcher) recordDispatch(class models.TaskClass, outcome Kind) {
	if d.metrics != nil {
		d.metrics.RecordDispatch(string(class), string(outcome))
	}
}

func classifyError(err error) classify.Classification {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return classify.Classify(perr.Status, perr.Message, perr.Transport)
	}
	return classify.Classify(0, err.Error(), false)
}

func upstreamMessage(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return err.Error()
}

func slotIDs(list []slots.Slot) []int {
	out := make([]int, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}
