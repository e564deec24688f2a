package dispatch

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/modelmux/modelmux/pkg/fault"
	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/relay"
	"github.com/modelmux/modelmux/pkg/telemetry"
)

// ExecuteStream runs the same state machine as Execute but emits the
// answer through r as it is produced. A failure before the first relayed
// chunk degrades to the fallback adapter exactly like the unary path; a
// failure after output has started can no longer be substituted, so it
// becomes a terminal error frame.
func (d *Dispatcher) ExecuteStream(ctx context.Context, req *model.Request, r *relay.Relay) (err error) {
	reqID := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, "dispatch.execute_stream",
		trace.WithAttributes(
			attribute.String("request.id", reqID),
			attribute.String("request.model", req.Model),
		))
	defer func() { telemetry.EndSpan(span, err) }()
	log := d.log.With(zap.String("request_id", reqID), zap.String("requested_model", req.Model))

	var notices composer
	desc := d.resolve(req, &notices, log)

	if short := d.augmentOrShortCircuit(ctx, req, log); short != nil {
		notices.addInline(short.Notices...)
		notices.addStatic(short.ModelInfo.StaticNotice)
		return d.finishWithText(ctx, r, &notices, short.Text)
	}
	if refusal := d.checkSafety(req, desc, &notices, log); refusal != nil {
		return d.finishWithText(ctx, r, &notices, refusal.Text)
	}

	emitted := false
	cb := func(chunk model.StreamChunk) error {
		if !emitted {
			// First data chunk proves desc is the answering model, so its
			// static notice belongs in the leading advisory block.
			notices.addStatic(desc.StaticNotice)
			if err := sendNotices(r, ctx, &notices); err != nil {
				return err
			}
			emitted = true
		}
		return r.Callback(ctx)(chunk)
	}

	err = d.adapters[desc.Kind].GenerateStream(ctx, req.Messages, desc, req.Options, cb)
	if err == nil {
		if !emitted {
			notices.addStatic(desc.StaticNotice)
			if nerr := sendNotices(r, ctx, &notices); nerr != nil {
				return nerr
			}
		}
		return r.Finish()
	}
	if ctx.Err() != nil {
		// Consumer went away; stop pulling and release the adapter.
		return ctx.Err()
	}

	f := fault.Classify(err)
	log.Warn("stream adapter failed",
		zap.String("kind", desc.Kind.String()),
		zap.String("class", string(f.Class)),
		zap.Bool("mid_stream", emitted),
		zap.Error(err))

	if emitted || f.Class == fault.ClassAuth {
		// Mid-stream, the client already holds a partial answer;
		// auth errors must never be masked. Both end the stream with an
		// error frame.
		if ferr := r.Fail(f.Message); ferr != nil {
			return ferr
		}
		return f
	}

	def := d.reg.Default()
	notices.addStatic(def.StaticNotice)
	notices.addDynamic(fallbackNotice(desc, def, f))
	if nerr := sendNotices(r, ctx, &notices); nerr != nil {
		return nerr
	}
	if serr := d.adapters[model.KindRuleBased].GenerateStream(ctx, req.Messages, def, req.Options, r.Callback(ctx)); serr != nil {
		return serr
	}
	return r.Finish()
}

// finishWithText streams a pre-built whole answer (image interception,
// safety refusal) through the relay.
func (d *Dispatcher) finishWithText(ctx context.Context, r *relay.Relay, notices *composer, text string) error {
	if err := sendNotices(r, ctx, notices); err != nil {
		return err
	}
	if err := r.RelayText(ctx, text); err != nil {
		return err
	}
	return r.Finish()
}

// sendNotices emits advisories as a leading content block. The streaming
// protocol has no notice field, so they travel as data the same way the
// original answer does.
func sendNotices(r *relay.Relay, ctx context.Context, notices *composer) error {
	composed := notices.compose()
	if len(composed) == 0 {
		return nil
	}
	block := strings.Join(composed, "\n") + "\n\n"
	return r.Callback(ctx)(model.StreamChunk{Content: block})
}
