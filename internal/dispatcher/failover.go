package dispatcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/local/facturador/internal/ai"
	mpkg "github.com/local/facturador/internal/metrics"
	"github.com/local/facturador/internal/progress"
	"github.com/local/facturador/internal/repair"
	"github.com/local/facturador/internal/stream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Extract runs req through its candidate models in order. A malformed model
// response is returned as a Result whose Repair holds the failure, with a nil
// error. em may be nil.
func (d *Dispatcher) Extract(ctx context.Context, req Request, em *progress.Emitter) (Result, error) {
	if em == nil {
		em = progress.New(nil)
	}
	lg := RequestLogger(req.ID, req.Provider)
	res := Result{Provider: req.Provider, State: StateIdle}

	fail := func(err error) (Result, error) {
		res.State = StateFailed
		res.Elapsed = em.Elapsed()
		mpkg.IncExtraction(req.Provider, "failed")
		em.Fail(err.Error(), nil)
		lg.Error().Err(err).Int("attempts", len(res.Attempts)).Dur("duration", res.Elapsed).Msg("extraction failed")
		return res, err
	}

	client, ok := d.clients[req.Provider]
	if !ok {
		return fail(fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider))
	}
	local := req.Provider == ai.ProviderOllama

	var candidates []string
	if local {
		candidates = BuildCandidates(req.Model, nil)
	} else {
		candidates = BuildCandidates(req.Model, req.Fallbacks)
	}
	if len(candidates) == 0 {
		return fail(ErrNoCandidates)
	}

	image := req.Image
	if d.optimizer != nil && len(image) > 0 {
		res.State = StateOptimizing
		em.Phase(progress.PhaseOptimizing, "optimizing image")
		out, err := d.optimizer(image)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrOptimize, err))
		}
		image = out
		em.Phase(progress.PhaseOptimized, fmt.Sprintf("image optimized (%d KB)", len(image)/1024))
	}
	imageB64 := base64.StdEncoding.EncodeToString(image)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
		if local {
			timeout = DefaultLocalTimeout
		}
	}

	var (
		text string
		won  Attempt
	)
	for i, model := range candidates {
		if err := d.stopped(ctx, em); err != nil {
			return fail(err)
		}
		if i > 0 && !local && d.backoff > 0 {
			if err := d.sleep(ctx, d.backoff); err != nil {
				return fail(fmt.Errorf("extraction canceled: %w", err))
			}
			if err := d.stopped(ctx, em); err != nil {
				return fail(err)
			}
		}

		// Remote: first attempt streams, later ones are buffered. Local
		// streams only when someone is watching progress.
		streamed := i == 0
		if local {
			streamed = em.Live()
		}

		res.State = StateSending
		em.Phase(progress.PhaseSending, fmt.Sprintf("sending to %s (%d/%d)", model, i+1, len(candidates)))
		lg.Info().Str("model", model).Int("attempt", i+1).Int("candidates", len(candidates)).Bool("stream", streamed).Msg("attempting extraction")

		att, out := d.attempt(ctx, client, req, model, imageB64, timeout, streamed, em, &res)
		att.Index = i
		res.Attempts = append(res.Attempts, att)
		mpkg.ObserveProvider(req.Provider, model, att.Outcome, att.Duration)
		mpkg.AddTokens(req.Provider, att.Tokens)

		alog := lg.With().Str("model", model).Int("attempt", i+1).Str("result", att.Outcome).Dur("duration", att.Duration).Logger()
		if att.Kind == KindNone {
			alog.Info().Int("tokens", att.Tokens).Msg("provider call success")
			text, won = out, att
			break
		}
		if att.Kind.Fatal() {
			alog.Error().Err(att.Err).Int("status", att.Status).Msg("fatal error - no retry")
			return fail(&FatalError{
				Kind:     att.Kind,
				Provider: req.Provider,
				Model:    model,
				Status:   att.Status,
				Body:     responseBody(att.Err),
				Err:      att.Err,
			})
		}
		ev := alog.Warn().Err(att.Err).Int("status", att.Status)
		if body := responseBody(att.Err); body != "" {
			ev = ev.Str("body", body)
		}
		ev.Msg("provider call failed - trying fallback")
		if i < len(candidates)-1 {
			mpkg.IncFallback(att.Kind.String())
		}
	}

	if won.Model == "" {
		return fail(&ExhaustedError{Provider: req.Provider, Attempts: res.Attempts})
	}

	res.State = StateRepairing
	res.Model = won.Model
	res.Tokens = won.Tokens
	res.Repair = repair.Repair(text)
	res.Elapsed = em.Elapsed()
	res.State = StateComplete

	result, repaired := "success", "parsed"
	if !res.Repair.OK() {
		result, repaired = KindMalformedOutput.String(), "malformed"
		lg.Warn().Str("model", won.Model).Str("parse_error", res.Repair.Failure.ParseError).Msg("model response is not valid JSON")
	}
	mpkg.IncRepair(repaired)
	mpkg.IncExtraction(req.Provider, result)
	em.Complete(won.Model, won.Tokens, res.Repair)
	lg.Info().Str("model", won.Model).Int("tokens", won.Tokens).Int("attempts", len(res.Attempts)).Dur("duration", res.Elapsed).Str("result", result).Msg("extraction complete")
	return res, nil
}

// stopped reports why no further attempt may start.
func (d *Dispatcher) stopped(ctx context.Context, em *progress.Emitter) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("extraction canceled: %w", err)
	}
	if em.Disconnected() {
		return ErrDisconnected
	}
	return nil
}

// attempt performs one call. Its context is detached from ctx so a client
// disconnect does not kill an in-flight call; only the timeout bounds it.
func (d *Dispatcher) attempt(ctx context.Context, client ai.Client, req Request, model, imageB64 string, timeout time.Duration, streamed bool, em *progress.Emitter, res *Result) (Attempt, string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	att := Attempt{Model: model, Streamed: streamed}
	start := d.now()
	text, err := d.call(actx, client, ai.Request{
		Model:       model,
		Prompt:      req.Prompt,
		ImageBase64: imageB64,
		APIKey:      req.APIKey,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      streamed,
	}, em, res, &att)
	att.Duration = d.now().Sub(start)

	if err == nil {
		switch {
		case d.filtered(text):
			err = &EmptyResponseError{Provider: client.Name(), Model: model, Filtered: true}
		case strings.TrimSpace(text) == "":
			err = &EmptyResponseError{Provider: client.Name(), Model: model}
		}
	}
	if err != nil {
		text = ""
	}
	att.Err = err
	att.Kind = classify(err)
	att.Status = ai.StatusCode(err)
	att.Outcome = outcomeLabel(att.Kind, err)
	return att, text
}

func (d *Dispatcher) call(ctx context.Context, client ai.Client, areq ai.Request, em *progress.Emitter, res *Result, att *Attempt) (string, error) {
	reply, err := client.Send(ctx, areq)
	if err != nil {
		return "", err
	}
	defer reply.Close()

	if !reply.Streaming() {
		att.Tokens = reply.Tokens
		return reply.Text, nil
	}

	res.State = StateStreaming
	var b strings.Builder
	for {
		ev, err := reply.Stream.Next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", &ai.TransportError{Provider: client.Name(), Err: err}
		}
		switch ev.Kind {
		case stream.KindDelta:
			b.WriteString(ev.Text)
			att.Tokens++
			em.Generating(areq.Model, att.Tokens)
		case stream.KindDone:
			if ev.Filtered {
				return "", &EmptyResponseError{Provider: client.Name(), Model: areq.Model, Filtered: true}
			}
			return b.String(), nil
		case stream.KindProviderError:
			return "", &ai.ProviderError{Provider: client.Name(), Code: ev.Code, Message: ev.Message}
		}
	}
}

// filtered reports whether accumulated text carries the policy sentinel.
func (d *Dispatcher) filtered(text string) bool {
	return d.sentinel != "" && strings.Contains(strings.ToLower(text), d.sentinel)
}

// RequestLogger returns the logger carrying the fields of one request.
func RequestLogger(id, provider string) zerolog.Logger {
	return log.With().Str("request_id", id).Str("provider", provider).Logger()
}
