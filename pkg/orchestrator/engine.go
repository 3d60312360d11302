// Package orchestrator drives a request from utterance to validated
// response: a fixed graph of stages with conditional edges at the
// confidence and quality gates, bounded retry loops, and streamed progress
// events.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chanakya-ai/chanakya/pkg/config"
	"github.com/chanakya-ai/chanakya/pkg/language"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/memory"
	"github.com/chanakya-ai/chanakya/pkg/model"
	"github.com/chanakya-ai/chanakya/pkg/observability"
	"github.com/chanakya-ai/chanakya/pkg/quality"
	"github.com/chanakya-ai/chanakya/pkg/tools"
)

const cannotRouteMessage = "could not determine how to help with this request"

// Engine executes the request graph. One Engine serves many concurrent
// requests; each request owns its State exclusively.
type Engine struct {
	llm        model.LLM
	memory     *memory.Service
	registry   *tools.Registry
	gate       *quality.Gate
	translator *language.Translator
	cfg        config.EngineConfig

	// Volatile terminal-state snapshots keyed by session id, so streaming
	// consumers can re-fetch the outcome. Durable history lives in memory's
	// store.
	checkpoints sync.Map
}

// New builds an Engine. gate and translator may be nil in tests; memory and
// registry are required.
func New(llm model.LLM, mem *memory.Service, reg *tools.Registry, gate *quality.Gate, translator *language.Translator, cfg config.EngineConfig) *Engine {
	cfg.SetDefaults()
	return &Engine{
		llm:        llm,
		memory:     mem,
		registry:   reg,
		gate:       gate,
		translator: translator,
		cfg:        cfg,
	}
}

// Process runs the graph to completion and returns the single terminal
// response. A cancelled context returns ctx.Err with no response.
func (e *Engine) Process(ctx context.Context, utt *Utterance) (*Response, error) {
	var final *Response
	err := e.run(ctx, utt, func(ev Event) {
		if ev.Type == EventFinal {
			final = ev.Response
		}
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// ProcessStreaming runs the graph in a goroutine and emits progress events
// on the returned channel. The channel closes after exactly one final or
// one error event.
func (e *Engine) ProcessStreaming(ctx context.Context, utt *Utterance) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		err := e.run(ctx, utt, func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			select {
			case events <- Event{Type: EventError, Error: err.Error()}:
			default:
			}
		}
	}()
	return events
}

// GetContext returns the hot-cache snapshot of a session, if cached.
func (e *Engine) GetContext(sessionID string) (*memory.Snapshot, bool) {
	return e.memory.GetSnapshot(sessionID)
}

// ClearContext evicts a session from the hot cache; the durable store is
// untouched.
func (e *Engine) ClearContext(sessionID string) bool {
	e.checkpoints.Delete(sessionID)
	return e.memory.Clear(sessionID)
}

// Checkpoint returns the terminal state of the last request for a session.
func (e *Engine) Checkpoint(sessionID string) (*State, bool) {
	v, ok := e.checkpoints.Load(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*State), true
}

// run executes every stage, emitting events along the way. The returned
// error is non-nil only for cancellation; every external failure is
// recovered inside its owning stage.
func (e *Engine) run(ctx context.Context, utt *Utterance, emit emitter) error {
	started := time.Now()
	log := logger.GetLogger()
	tracer := observability.GetTracer("chanakya.orchestrator")

	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	finish := func(state *State, resp *Response) {
		resp.ProcessingMS = time.Since(started).Milliseconds()
		if state != nil {
			state.ProcessingMS = resp.ProcessingMS
			e.checkpoints.Store(state.SessionID, state.clone())
		}
		if metrics := observability.GetGlobalMetrics(); metrics != nil {
			metrics.RecordRequest(ctx, resp.ToolUsed, time.Since(started), nil)
		}
		emit(Event{Type: EventFinal, Response: resp})
	}

	// Input validation happens before any session mutation.
	text := strings.TrimSpace(utt.Text)
	if text == "" || len([]rune(utt.Text)) > MaxUtteranceLen {
		log.Warn("input_invalid", "len", len([]rune(utt.Text)))
		finish(nil, &Response{
			ToolUsed:  "none",
			Reasoning: "invalid input",
			Error:     fmt.Sprintf("utterance must be 1..%d characters", MaxUtteranceLen),
		})
		return nil
	}

	state := &State{
		Query:          text,
		SessionID:      utt.SessionID,
		SourceLanguage: language.Detect(text),
	}
	if state.SessionID == "" {
		state.SessionID = uuid.NewString()
	}
	if len(utt.Context) > 0 {
		var tc tools.Context
		if err := mapstructure.Decode(utt.Context, &tc); err != nil {
			log.Warn("context_decode_failed", "session", state.SessionID, "error", err)
		} else {
			state.Context = &tc
		}
	}
	span.SetAttributes(
		attribute.String("session_id", state.SessionID),
		attribute.String("source_language", state.SourceLanguage),
	)

	// Load context.
	if err := e.stage(ctx, tracer, emit, StageLoadContext, state, func(ctx context.Context) map[string]any {
		e.memory.GetOrCreate(ctx, state.SessionID)
		e.memory.Append(ctx, state.SessionID, memory.RoleUser, state.Query)
		e.memory.MaybeSummarize(ctx, state.SessionID)
		return map[string]any{"session_id": state.SessionID}
	}); err != nil {
		return err
	}

	// Route with the confidence-gate loop. Attempts count Route
	// executions, so the ceiling is MaxRoutingRetries + 1 calls.
	var decision routeDecision
	for {
		if err := e.stage(ctx, tracer, emit, StageRoute, state, func(ctx context.Context) map[string]any {
			history := e.memory.Recent(state.SessionID, e.cfg.ContextWindow)
			decision = e.route(ctx, state.Query, history)
			state.RoutingAttempts++
			state.SelectedTool = decision.SelectedTool
			state.RoutingReason = decision.Reason
			state.ExtractedTopic = decision.ExtractedTopic
			state.RouteConfidence = decision.Confidence
			return map[string]any{
				"selected_tool": decision.SelectedTool,
				"confidence":    decision.Confidence,
				"attempt":       state.RoutingAttempts,
			}
		}); err != nil {
			return err
		}

		accepted := decision.Confidence >= e.cfg.ConfidenceMin
		retry := !accepted && state.RoutingAttempts <= e.cfg.MaxRoutingRetries
		emit.stageStarted(StageConfidenceGate, state)
		emit.stageCompleted(StageConfidenceGate, map[string]any{
			"accepted": accepted,
			"retry":    retry,
		})

		if accepted {
			break
		}
		if retry {
			log.Info("routing_retry", "session", state.SessionID,
				"confidence", decision.Confidence, "attempt", state.RoutingAttempts)
			continue
		}

		// Retries exhausted: terminate with a structured response.
		log.Warn("routing_exhausted", "session", state.SessionID,
			"confidence", decision.Confidence)
		finish(state, &Response{
			ToolUsed:   "none",
			Reasoning:  decision.Reason,
			Confidence: decision.Confidence,
			Error:      cannotRouteMessage,
		})
		return nil
	}

	selected, ok := e.registry.Get(state.SelectedTool)
	if !ok {
		finish(state, &Response{
			ToolUsed:   "none",
			Reasoning:  state.RoutingReason,
			Confidence: state.RouteConfidence,
			Error:      cannotRouteMessage,
		})
		return nil
	}
	info := selected.Info()

	// Execute with the quality-gate loop. Attempts count gate evaluations.
	for {
		if err := e.stage(ctx, tracer, emit, StageExecute, state, func(ctx context.Context) map[string]any {
			state.Result, state.ToolError = e.execute(ctx, selected, state.ExtractedTopic, state.Context)
			return map[string]any{"tool": info.Name, "tool_error": state.ToolError}
		}); err != nil {
			return err
		}

		if err := e.stage(ctx, tracer, emit, StageValidate, state, func(ctx context.Context) map[string]any {
			if state.ToolError == "" && state.Result.Empty() {
				state.ToolError = "tool returned an empty payload"
				state.Result = nil
			}
			if state.ToolError == "" && info.FollowUp != "" {
				state.NeedsFollowUp = true
				state.FollowUpTool = info.FollowUp
			}
			return map[string]any{
				"usable":          state.ToolError == "",
				"needs_follow_up": state.NeedsFollowUp,
			}
		}); err != nil {
			return err
		}

		if !info.QualityGate || state.ToolError != "" || e.gate == nil {
			break
		}

		var verdict *quality.Verdict
		if err := e.stage(ctx, tracer, emit, StageQualityGate, state, func(ctx context.Context) map[string]any {
			verdict = e.gate.Check(ctx, state.Query, state.Result)
			state.QualityAttempts++
			state.QualityScore = verdict.OverallScore
			state.QualityNeedsRedo = verdict.NeedsRedo
			state.ValidationNotes = verdict.Issues
			return map[string]any{
				"score":   verdict.OverallScore,
				"redo":    verdict.NeedsRedo,
				"attempt": state.QualityAttempts,
			}
		}); err != nil {
			return err
		}

		if !verdict.NeedsRedo {
			break
		}
		if state.QualityAttempts > e.cfg.MaxQualityRetries {
			log.Warn("quality_retries_exhausted", "session", state.SessionID,
				"score", verdict.OverallScore)
			break
		}
		log.Info("quality_regeneration", "session", state.SessionID,
			"score", verdict.OverallScore, "attempt", state.QualityAttempts)
	}

	// Tool failed outright: structured error response, quality gate and
	// follow-up skipped.
	if state.ToolError != "" {
		finish(state, &Response{
			ToolUsed:   info.Name,
			Reasoning:  state.RoutingReason,
			Confidence: state.RouteConfidence,
			Error:      state.ToolError,
		})
		return nil
	}

	// Follow-up.
	if state.NeedsFollowUp {
		if err := e.stage(ctx, tracer, emit, StageFollowUp, state, func(ctx context.Context) map[string]any {
			followTool, ok := e.registry.Get(state.FollowUpTool)
			if !ok {
				log.Warn("follow_up_tool_missing", "tool", state.FollowUpTool)
				return map[string]any{"ran": false}
			}
			// The follow-up gets the original query, not the extracted
			// topic: a crisis about noise should yield a calming activity
			// for that same situation.
			followResult, followErr := e.execute(ctx, followTool, state.Query, state.Context)
			if followErr != "" || followResult.Empty() {
				log.Warn("follow_up_failed", "tool", state.FollowUpTool, "error", followErr)
				return map[string]any{"ran": false}
			}
			state.Result.FollowUp = followResult
			return map[string]any{"ran": true, "tool": state.FollowUpTool}
		}); err != nil {
			return err
		}
	}

	// Finalize: translate the result back into the source language, then
	// record the assistant turn(s).
	if err := e.stage(ctx, tracer, emit, StageFinalize, state, func(ctx context.Context) map[string]any {
		if e.translator != nil && state.SourceLanguage != language.English {
			fields := state.Result.TranslatableFields()
			translated := e.translator.TranslateBatch(ctx, fields, state.SourceLanguage)
			state.Result.SetTranslatedFields(translated)
		}

		e.memory.Append(ctx, state.SessionID, memory.RoleAssistant, state.Result.Summary())
		if state.Result.FollowUp != nil {
			e.memory.Append(ctx, state.SessionID, memory.RoleAssistant, state.Result.FollowUp.Summary())
		}
		return map[string]any{"language": state.SourceLanguage}
	}); err != nil {
		return err
	}

	finish(state, &Response{
		ToolUsed:   info.Name,
		Reasoning:  state.RoutingReason,
		Result:     state.Result,
		Confidence: state.RouteConfidence,
	})
	return nil
}

// stage wraps one node: cancellation check, start/complete events, span and
// stage metric.
func (e *Engine) stage(ctx context.Context, tracer trace.Tracer, emit emitter, stage Stage, state *State, fn func(ctx context.Context) map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	started := time.Now()
	ctx, span := tracer.Start(ctx, "stage."+string(stage))
	defer span.End()

	emit.stageStarted(stage, state)
	delta := fn(ctx)
	emit.stageCompleted(stage, delta)

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordStage(ctx, string(stage), time.Since(started))
	}
	return ctx.Err()
}

// execute invokes a tool under the tool deadline. Failures are captured,
// never thrown across the boundary.
func (e *Engine) execute(ctx context.Context, tool tools.Tool, topic string, tc *tools.Context) (*tools.Result, string) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()

	result, err := tool.Run(ctx, topic, tc)

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordToolExecution(ctx, tool.Info().Name, time.Since(started), err)
	}

	if err != nil {
		logger.GetLogger().Error("tool_failed", "tool", tool.Info().Name, "error", err)
		return nil, fmt.Sprintf("tool %s failed", tool.Info().Name)
	}
	return result, ""
}
