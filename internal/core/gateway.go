// Package core turns inbound generate requests into dispatches and records
// their outcome in the usage, trace and event sinks.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotgateway/internal/logger"
	"slotgateway/internal/messaging/kafka"
	"slotgateway/internal/middleware"
	"slotgateway/internal/models"
	"slotgateway/internal/routing"
	"slotgateway/internal/trace"
	"slotgateway/internal/usage"
)

// ErrInvalidRequest marks requests rejected before dispatch.
var ErrInvalidRequest = errors.New("invalid request")

// legacyHintKey is the part index field of the original structured-tree callers.
const legacyHintKey = "INDICE_BLOQUE"

// Publisher receives one event per finished dispatch.
type Publisher interface {
	PublishDispatch(ctx context.Context, event kafka.DispatchEvent) error
}

// Dispatcher is the subset of routing.Dispatcher the gateway depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, req routing.Request) (routing.Result, error)
}

// Options are the generation defaults applied when a request leaves them unset.
type Options struct {
	Temperature       float64
	MaxTokens         int
	MaxTokensReserved int
	TokenBudget       int
	ReservedPromptIDs []string
}

type Gateway struct {
	dispatcher Dispatcher
	usage      usage.Sink
	trace      *trace.Store
	events     Publisher
	opts       Options
	reserved   map[string]bool
	log        *slog.Logger
}

// New builds a gateway. events may be nil when no broker is configured.
func New(d Dispatcher, usageSink usage.Sink, traceStore *trace.Store, events Publisher, opts Options) *Gateway {
	reserved := make(map[string]bool, len(opts.ReservedPromptIDs))
	for _, id := range opts.ReservedPromptIDs {
		if id = strings.TrimSpace(id); id != "" {
			reserved[id] = true
		}
	}
	return &Gateway{
		dispatcher: d,
		usage:      usageSink,
		trace:      traceStore,
		events:     events,
		opts:       opts,
		reserved:   reserved,
		log:        logger.WithComponent("gateway"),
	}
}

// ClassOf derives the task class: reserved when asked for explicitly or
// when the prompt id is one of the reserved structured-generation prompts.
func (g *Gateway) ClassOf(req models.GenerateRequest) models.TaskClass {
	if models.ParseTaskClass(strings.TrimSpace(req.Task)) == models.TaskReserved {
		return models.TaskReserved
	}
	if req.PromptID != "" && g.reserved[req.PromptID] {
		return models.TaskReserved
	}
	return models.TaskGeneral
}

// Generate validates and shapes req, dispatches it and records the outcome.
// The returned attempts are populated on failure as well.
func (g *Gateway) Generate(ctx context.Context, apiType string, req models.GenerateRequest) (models.GenerateResponse, []models.Attempt, error) {
	started := time.Now()
	requestID := middleware.GetRequestID(ctx)
	traceID := middleware.GetTraceID(ctx)
	apiKeyName := middleware.GetAPIKeyName(ctx)

	msgs := messagesOf(req)
	if len(msgs) == 0 {
		return models.GenerateResponse{}, nil, fmt.Errorf("%w: send a non-empty \"prompt\" or \"messages\"", ErrInvalidRequest)
	}
	hint, err := hintOf(req)
	if err != nil {
		return models.GenerateResponse{}, nil, err
	}

	class := g.ClassOf(req)
	dreq := routing.Request{
		Messages:  msgs,
		Options:   g.optionsFor(class, req),
		Class:     class,
		Hint:      hint,
		RequestID: requestID,
	}

	log := g.log.With("request_id", requestID, "class", string(class))
	if req.PromptID != "" {
		log = log.With("prompt_id", req.PromptID)
	}
	g.trace.Add(trace.Event{
		Timestamp: started, TraceID: traceID, RequestID: requestID,
		Type: "accepted", Message: "generate request accepted (" + string(class) + ")",
	})

	res, err := g.dispatcher.Dispatch(ctx, dreq)
	duration := time.Since(started)
	for _, a := range res.Attempts {
		msg := a.Status
		if a.Classification != "" {
			msg += ": " + a.Classification
		}
		g.trace.Add(trace.Event{
			Timestamp: time.Now(), TraceID: traceID, RequestID: requestID,
			Type: "attempt", SlotID: a.SlotID, Message: msg,
		})
	}

	rec := usage.Record{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		RequestID:   requestID,
		TraceID:     traceID,
		APIKeyName:  apiKeyName,
		IncomingAPI: apiType,
		TaskClass:   string(class),
		PromptID:    req.PromptID,
		Attempts:    len(res.Attempts),
		DurationMs:  duration.Milliseconds(),
	}
	event := kafka.DispatchEvent{
		EventID:    rec.ID,
		RequestID:  requestID,
		TraceID:    traceID,
		APIKeyName: apiKeyName,
		Timestamp:  rec.Timestamp,
		TaskClass:  string(class),
		PromptID:   req.PromptID,
		Attempts:   res.Attempts,
		DurationMs: rec.DurationMs,
	}

	if err != nil {
		kind := failureKind(err)
		rec.Status, rec.ErrorKind = "error", kind
		var rerr *routing.Error
		if errors.As(err, &rerr) {
			rec.SlotID = rerr.SlotID
		}
		event.Outcome, event.SlotID, event.Message = kind, rec.SlotID, err.Error()

		g.trace.Add(trace.Event{
			Timestamp: time.Now(), TraceID: traceID, RequestID: requestID,
			Type: "failed", SlotID: rec.SlotID, Message: err.Error(),
		})
		g.usage.Add(rec)
		g.publish(ctx, event)
		log.Warn("generate failed", "kind", kind, "attempts", len(res.Attempts), "duration_ms", rec.DurationMs)
		return models.GenerateResponse{}, res.Attempts, err
	}

	rec.Status, rec.SlotID, rec.Provider, rec.Model, rec.Usage = "success", res.SlotID, res.Provider, res.Model, res.Usage
	event.Outcome, event.SlotID, event.Provider, event.Model, event.Usage = "success", res.SlotID, res.Provider, res.Model, res.Usage

	g.trace.Add(trace.Event{
		Timestamp: time.Now(), TraceID: traceID, RequestID: requestID,
		Type: "completed", SlotID: res.SlotID, Message: "served by " + res.Provider + " " + res.Model,
	})
	g.usage.Add(rec)
	g.publish(ctx, event)
	log.Info("generate served", "slot_id", res.SlotID, "attempts", len(res.Attempts), "duration_ms", rec.DurationMs)

	return models.GenerateResponse{
		Text:     res.Text,
		Slot:     res.SlotID,
		Provider: res.Provider,
		Model:    res.Model,
		Attempts: res.Attempts,
	}, res.Attempts, nil
}

func (g *Gateway) publish(ctx context.Context, event kafka.DispatchEvent) {
	if g.events == nil {
		return
	}
	// The request context may already be canceled; the event still describes a finished dispatch.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := g.events.PublishDispatch(pctx, event); err != nil {
		g.log.Warn("dispatch event not published", "request_id", event.RequestID, "error", err.Error())
	}
}

func (g *Gateway) optionsFor(class models.TaskClass, req models.GenerateRequest) models.GenerationOptions {
	opts := models.GenerationOptions{
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
		TokenBudget: g.opts.TokenBudget,
	}
	if class == models.TaskReserved && g.opts.MaxTokensReserved > 0 {
		opts.MaxTokens = g.opts.MaxTokensReserved
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		opts.MaxTokens = *req.MaxTokens
	}
	return opts
}

func messagesOf(req models.GenerateRequest) []models.Message {
	out := make([]models.Message, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role == "" {
			m.Role = "user"
		}
		out = append(out, m)
	}
	if len(out) == 0 && strings.TrimSpace(req.Prompt) != "" {
		out = append(out, models.Message{Role: "user", Content: req.Prompt})
	}
	return out
}

// hintOf reads the placement hint from partIndex, else from datos.INDICE_BLOQUE.
func hintOf(req models.GenerateRequest) (*int, error) {
	if req.PartIndex != nil {
		v := *req.PartIndex
		return &v, nil
	}
	raw, ok := req.Data[legacyHintKey]
	if !ok || raw == nil {
		return nil, nil
	}
	var v int
	switch t := raw.(type) {
	case float64:
		if t != math.Trunc(t) {
			return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidRequest, legacyHintKey)
		}
		v = int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidRequest, legacyHintKey)
		}
		v = n
	default:
		return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidRequest, legacyHintKey)
	}
	return &v, nil
}

func failureKind(err error) string {
	var rerr *routing.Error
	switch {
	case errors.As(err, &rerr):
		return string(rerr.Kind)
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "internal"
	}
}
