// Package dispatch selects an adapter for each request and manages the
// fallback chain. The policy it implements: users always get an answer,
// with any downgrade made visible through notices, except for credential
// problems, which must surface so operators fix configuration instead of
// the fallback silently papering over them.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/modelmux/modelmux/pkg/augment"
	"github.com/modelmux/modelmux/pkg/fault"
	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/registry"
	"github.com/modelmux/modelmux/pkg/safety"
	"github.com/modelmux/modelmux/pkg/telemetry"
)

// Adapters maps each provider kind to its adapter. The map is total over
// the closed Kind enum; New enforces that so dispatch can never fall
// through to an unsupported kind at runtime.
type Adapters map[model.Kind]model.Adapter

// Dispatcher runs the per-request state machine.
type Dispatcher struct {
	reg      *registry.Registry
	adapters Adapters
	filter   *safety.Filter
	stage    *augment.Stage
	log      *zap.Logger
}

// New wires a dispatcher. filter and stage may be nil to disable the
// corresponding pipeline steps (useful in tests).
func New(reg *registry.Registry, adapters Adapters, filter *safety.Filter, stage *augment.Stage, log *zap.Logger) (*Dispatcher, error) {
	for _, kind := range []model.Kind{model.KindCloudChat, model.KindLocalDaemon, model.KindOnDevice, model.KindRuleBased} {
		if adapters[kind] == nil {
			return nil, fmt.Errorf("dispatch: no adapter registered for kind %s", kind)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{reg: reg, adapters: adapters, filter: filter, stage: stage, log: log}, nil
}

// Execute answers one request. The returned error is non-nil only for
// auth failures and context cancellation; every other failure degrades to
// the rule-based fallback and still produces a result.
func (d *Dispatcher) Execute(ctx context.Context, req *model.Request) (*model.Result, error) {
	reqID := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, "dispatch.execute",
		trace.WithAttributes(
			attribute.String("request.id", reqID),
			attribute.String("request.model", req.Model),
		))
	var err error
	defer func() { telemetry.EndSpan(span, err) }()
	log := d.log.With(zap.String("request_id", reqID), zap.String("requested_model", req.Model))

	var notices composer
	desc := d.resolve(req, &notices, log)

	if short := d.augmentOrShortCircuit(ctx, req, log); short != nil {
		notices.addInline(short.Notices...)
		notices.addStatic(short.ModelInfo.StaticNotice)
		short.Notices = notices.compose()
		return short, nil
	}

	if refusal := d.checkSafety(req, desc, &notices, log); refusal != nil {
		return refusal, nil
	}

	result, callErr := d.adapters[desc.Kind].Generate(ctx, req.Messages, desc, req.Options)
	if callErr == nil {
		notices.addInline(result.Notices...)
		notices.addStatic(desc.StaticNotice)
		result.Model = desc.ID
		result.ModelInfo = desc
		result.Notices = notices.compose()
		return result, nil
	}
	if ctx.Err() != nil {
		err = ctx.Err()
		return nil, err
	}

	f := fault.Classify(callErr)
	log.Warn("adapter failed",
		zap.String("kind", desc.Kind.String()),
		zap.String("class", string(f.Class)),
		zap.Error(callErr))

	if f.Class == fault.ClassAuth {
		err = f
		return nil, err
	}

	return d.fallback(ctx, req, desc, f, &notices)
}

// resolve maps the requested id to a descriptor, noting the substitution
// when the id was unknown.
func (d *Dispatcher) resolve(req *model.Request, notices *composer, log *zap.Logger) model.Descriptor {
	desc, known := d.reg.Lookup(req.Model)
	if !known && req.Model != "" {
		notices.addDynamic(fmt.Sprintf(
			"The requested model %q is not registered; your request was answered by the default model %q instead.",
			req.Model, desc.ID))
		log.Info("unknown model substituted", zap.String("resolved", desc.ID))
	}
	return desc
}

// augmentOrShortCircuit runs the augmentation stage; a non-nil result is
// the image-generation interception and bypasses adapters entirely.
func (d *Dispatcher) augmentOrShortCircuit(ctx context.Context, req *model.Request, log *zap.Logger) *model.Result {
	if d.stage == nil {
		return nil
	}
	short, err := d.stage.Apply(ctx, req, d.reg.Default())
	if err != nil {
		log.Warn("augmentation failed, continuing unaugmented", zap.Error(err))
		return nil
	}
	return short
}

// checkSafety runs the policy filter for offline backends. Cloud backends
// carry their own moderation, so their prompts pass straight through.
func (d *Dispatcher) checkSafety(req *model.Request, desc model.Descriptor, notices *composer, log *zap.Logger) *model.Result {
	if d.filter == nil || !desc.Kind.Offline() {
		return nil
	}
	verdict := d.filter.Check(req.LastUserContent())
	if !verdict.Blocked {
		return nil
	}
	log.Info("request blocked by safety filter", zap.String("category", verdict.Category))
	notices.addDynamic(fmt.Sprintf("Request declined by the safety filter (category: %s).", verdict.Category))
	return &model.Result{
		Text:      verdict.Message,
		Model:     desc.ID,
		ModelInfo: desc,
		Notices:   notices.compose(),
	}
}

// fallback retries exactly once against the rule-based adapter with the
// original prompt content.
func (d *Dispatcher) fallback(ctx context.Context, req *model.Request, failed model.Descriptor, f *fault.Failure, notices *composer) (*model.Result, error) {
	def := d.reg.Default()
	notices.addDynamic(fallbackNotice(failed, def, f))

	result, err := d.adapters[model.KindRuleBased].Generate(ctx, req.Messages, def, req.Options)
	if err != nil {
		// The rule-based adapter is contractually infallible; reaching
		// this means a programming error, not a runtime condition.
		return nil, fmt.Errorf("dispatch: terminal fallback failed: %w", err)
	}
	notices.addInline(result.Notices...)
	notices.addStatic(def.StaticNotice)
	result.Model = def.ID
	result.ModelInfo = def
	result.Notices = notices.compose()
	result.Loading = f.Class == fault.ClassUnavailable
	return result, nil
}

func fallbackNotice(failed, def model.Descriptor, f *fault.Failure) string {
	return fmt.Sprintf("%s: %s. Your request was answered by %q instead.",
		failureHeadline(f.Class, failed.ID), f.Message, def.ID)
}

func failureHeadline(class fault.Class, id string) string {
	switch class {
	case fault.ClassRateLimited:
		return fmt.Sprintf("Model %q is rate limited", id)
	case fault.ClassUnavailable:
		return fmt.Sprintf("Model %q is temporarily unavailable", id)
	case fault.ClassConnRefused:
		return fmt.Sprintf("Model %q could not be reached", id)
	case fault.ClassMalformed:
		return fmt.Sprintf("Model %q rejected the request", id)
	default:
		return fmt.Sprintf("Model %q failed", id)
	}
}
