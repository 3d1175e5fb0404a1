package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/azimuth-ai/azimuth/pkg/telemetry"
)

// attemptOutcome is everything one worker learned from one attempt. Workers
// send outcomes over a single channel and never mutate shared state.
type attemptOutcome struct {
	goalID    string
	action    *ResolvedAction
	preflight *PreflightResult
	result    *ActionResult
	eval      *EvaluationResult
	record    *FailureRecord
	err       error
}

// ExecutionOrchestrator drives a run to completion. All mutation of the goal
// graph, the learned constraints cache, and the execution history happens on
// the orchestrator goroutine; workers run at most one attempt each and
// report back over a channel. This keeps constraint learning ordered: a
// failed parameter value is recorded before any attempt that must avoid it
// is dispatched.
type ExecutionOrchestrator struct {
	cfg       Config
	scheduler *DependencyScheduler
	selector  *StrategySelector
	executor  *ActionExecutor
	evaluator *GoalEvaluator
	recovery  *FailureRecoveryEngine
	cache     *LearnedConstraintsCache
	history   *ExecutionHistory
	tool      Tool
}

// NewExecutionOrchestrator wires the engine components for one run. The
// constraints cache and history are created per run and can be inspected
// after Run returns.
func NewExecutionOrchestrator(cfg Config, reasoner Reasoner, tool Tool) *ExecutionOrchestrator {
	cache := NewLearnedConstraintsCache()
	return &ExecutionOrchestrator{
		cfg:       cfg,
		scheduler: NewDependencyScheduler(),
		selector:  NewStrategySelector(reasoner),
		executor:  NewActionExecutor(cfg.ActionTimeout),
		evaluator: NewGoalEvaluator(reasoner),
		recovery:  NewFailureRecoveryEngine(cfg, cache, reasoner),
		cache:     cache,
		history:   NewExecutionHistory(),
		tool:      tool,
	}
}

// History returns the run's execution history.
func (o *ExecutionOrchestrator) History() *ExecutionHistory {
	return o.history
}

// Constraints returns the run's learned constraints cache.
func (o *ExecutionOrchestrator) Constraints() *LearnedConstraintsCache {
	return o.cache
}

// Run executes the graph until every goal settles, then returns the final
// report. Run always returns a report: cancellation aborts unfinished goals,
// and a global iteration cap of total_goals x max_attempts_per_goal plus
// slack bounds runaway recovery loops.
func (o *ExecutionOrchestrator) Run(ctx context.Context, requestText string, graph *GoalGraph) *FinalReport {
	runID := uuid.New().String()
	start := time.Now()

	log := telemetry.FromContext(ctx).NewComponentLogger("orchestrator").WithRunID(runID)
	ctx = telemetry.WithContext(ctx, log)
	ctx, span := telemetry.StartSpan(ctx, "engine.run", telemetry.AttrRunID.String(runID))
	defer span.End()

	log.Infof("starting run with %d goals across %d levels", graph.Len(), graph.Depth())

	results := make(chan *attemptOutcome)
	retries := make(chan string, graph.Len())
	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrency))

	exhausted := make(map[string]bool)
	deferred := make(map[string]bool)
	timers := make(map[string]*time.Timer)
	inFlight := 0
	dispatched := 0
	maxDispatches := graph.Len()*o.cfg.maxAttemptsPerGoal() + o.cfg.IterationSlack
	aborting := false

	dispatch := func(goal *Goal) {
		goal.Status = GoalStatusInProgress
		goal.Attempts++
		dispatched++
		inFlight++
		snapshot := graph.Outputs()
		go func() {
			out := o.attempt(ctx, goal, snapshot)
			// Release before publishing so the permit is free by the time
			// the orchestrator reacts to this outcome.
			sem.Release(1)
			results <- out
		}()
	}

	scheduleFrontier := func() {
		if aborting {
			return
		}
		for _, goal := range o.scheduler.NextGroup(graph, exhausted) {
			if dispatched >= maxDispatches {
				log.Warnf("iteration cap of %d dispatches reached, aborting remaining goals", maxDispatches)
				aborting = true
				return
			}
			if !sem.TryAcquire(1) {
				return
			}
			goal.Status = GoalStatusReady
			dispatch(goal)
		}
	}

	scheduleFrontier()

	for inFlight > 0 || len(timers) > 0 {
		select {
		case <-ctx.Done():
			if !aborting {
				log.Warnf("run cancelled, waiting for %d in-flight actions", inFlight)
				aborting = true
				for id, timer := range timers {
					timer.Stop()
					delete(timers, id)
				}
			}
			if inFlight == 0 {
				goto done
			}
			out := <-results
			inFlight--
			o.applyOutcome(ctx, graph, out, exhausted, deferred, timers, retries)

		case id := <-retries:
			delete(timers, id)
			if aborting {
				continue
			}
			goal := graph.Goal(id)
			if goal == nil || goal.Status != GoalStatusInProgress {
				continue
			}
			if sem.TryAcquire(1) {
				dispatch(goal)
				continue
			}
			// Every worker is busy. Hand the goal back to the frontier so
			// the next completion re-dispatches it instead of losing it.
			goal.Status = GoalStatusPending

		case out := <-results:
			inFlight--
			o.applyOutcome(ctx, graph, out, exhausted, deferred, timers, retries)
			scheduleFrontier()
		}
	}

done:
	o.settleRemaining(graph, exhausted, aborting)

	report := BuildFinalReport(runID, requestText, graph, start, time.Now())
	telemetry.ObserveRunCompleted(report.Duration, report.Summary.Failed == 0 && report.Summary.Aborted == 0)
	log.Infof("run finished: %d achieved, %d partial, %d failed, %d blocked, %d aborted",
		report.Summary.Achieved, report.Summary.Partial, report.Summary.Failed,
		report.Summary.Blocked, report.Summary.Aborted)
	return report
}

// attempt runs one full attempt for a goal off the orchestrator goroutine:
// resolve, execute, evaluate, and classify on failure. It reads the goal and
// the cache but mutates neither.
func (o *ExecutionOrchestrator) attempt(ctx context.Context, goal *Goal, outputs map[string]map[string]string) *attemptOutcome {
	ctx, span := telemetry.StartSpan(ctx, "engine.attempt",
		telemetry.AttrGoalID.String(goal.ID),
		telemetry.AttrGoalType.String(string(goal.Type)))
	defer span.End()

	out := &attemptOutcome{goalID: goal.ID}

	action, preflight, err := o.selector.Resolve(ctx, goal, outputs)
	if err != nil {
		telemetry.RecordError(span, err)
		out.err = err
		return out
	}
	if !preflight.Ready {
		out.preflight = preflight
		return out
	}
	out.action = action

	out.result = o.executor.Execute(ctx, goal, action, o.tool)
	out.eval = o.evaluator.Evaluate(ctx, goal, out.result)
	if out.result.Error != nil {
		telemetry.RecordError(span, out.result.Error)
		out.record = o.recovery.Classify(ctx, goal, out.result.Error, nil)
	}
	return out
}

// applyOutcome folds one attempt outcome into the run state. Runs only on
// the orchestrator goroutine.
func (o *ExecutionOrchestrator) applyOutcome(
	ctx context.Context,
	graph *GoalGraph,
	out *attemptOutcome,
	exhausted map[string]bool,
	deferred map[string]bool,
	timers map[string]*time.Timer,
	retries chan<- string,
) {
	goal := graph.Goal(out.goalID)
	log := telemetry.FromContext(ctx).WithGoalID(goal.ID)

	switch {
	case out.err != nil:
		goal.Status = GoalStatusFailed
		goal.LastError = AsEngineError(out.err)
		o.history.RecordStatus(goal.ID, GoalStatusFailed, goal.LastError.Message)
		log.WithError(out.err).Warnf("goal failed before execution")
		o.settleBlocked(graph, exhausted)

	case out.preflight != nil:
		// Unresolvable references get one deferral; a second miss means the
		// dependency outputs will never materialize.
		if deferred[goal.ID] {
			goal.Status = GoalStatusFailed
			goal.LastError = NewPreflightError(goal.ID, out.preflight.MissingRefs)
			o.history.RecordStatus(goal.ID, GoalStatusFailed, goal.LastError.Message)
			log.Warnf("unresolvable references %v", out.preflight.MissingRefs)
			o.settleBlocked(graph, exhausted)
		} else {
			deferred[goal.ID] = true
			goal.Status = GoalStatusPending
			goal.Attempts--
			log.Debugf("deferring goal, missing references %v", out.preflight.MissingRefs)
		}

	default:
		o.history.RecordAttempt(goal, out.result)
		o.history.RecordEvaluation(goal.ID, out.eval)
		o.applyEvaluation(ctx, graph, goal, out, exhausted, timers, retries)
	}
}

// applyEvaluation settles or reschedules the goal based on the evaluation
// and, for failures, the recovery decision.
func (o *ExecutionOrchestrator) applyEvaluation(
	ctx context.Context,
	graph *GoalGraph,
	goal *Goal,
	out *attemptOutcome,
	exhausted map[string]bool,
	timers map[string]*time.Timer,
	retries chan<- string,
) {
	log := telemetry.FromContext(ctx).WithGoalID(goal.ID)
	goal.Confidence = out.eval.Confidence

	if out.result.Success && out.eval.Status != GoalStatusFailed {
		goal.Status = out.eval.Status
		goal.Evidence = out.eval.CriteriaMet
		goal.LastError = nil
		if out.eval.Status == GoalStatusAchieved {
			goal.Outputs = buildOutputs(out.action, out.result)
			if name := out.action.Parameters["name"]; name != "" {
				o.cache.Record(goal.Type, "name", name, OutcomeSucceeded)
			}
			log.Infof("goal achieved with confidence %.1f after %d attempts", goal.Confidence, goal.Attempts)
		} else {
			// Partial with a clean execution is a final verification gap,
			// not a retry case.
			exhausted[goal.ID] = true
			log.Infof("goal partial with confidence %.1f", goal.Confidence)
		}
		telemetry.ObserveGoalSettled(string(goal.Status), goal.Attempts)
		o.history.RecordStatus(goal.ID, goal.Status, "")
		return
	}

	// Run-level cancellation is not a goal failure; the goal is abandoned.
	if out.result.Error != nil && errors.Is(out.result.Error, context.Canceled) {
		goal.Status = GoalStatusAborted
		o.history.RecordStatus(goal.ID, GoalStatusAborted, "run cancelled mid-attempt")
		telemetry.ObserveGoalSettled(string(GoalStatusAborted), goal.Attempts)
		return
	}

	// Failure path. The worker classified it already; apply the decision.
	record := out.record
	goal.LastError = out.result.Error
	if record == nil {
		// The tool reported success but a hard criterion failed. The
		// signals conflict and no recovery applies.
		goal.LastError = NewEvaluationAmbiguousError(goal.ID)
		record = &FailureRecord{
			GoalID:         goal.ID,
			AttemptNumber:  goal.Attempts,
			Classification: FailureClassUnrecoverable,
			Decision:       DecisionAbort,
			Reason:         goal.LastError.Message,
		}
	}
	o.history.RecordRecovery(record)
	telemetry.ObserveRecoveryDecision(string(record.Classification), string(record.Decision))

	switch record.Decision {
	case DecisionRetryBackoff:
		goal.TransientAttempts++
		log.Infof("retrying after %s (%s)", record.Delay, record.Reason)
		goalID := goal.ID
		timers[goalID] = time.AfterFunc(record.Delay, func() {
			retries <- goalID
		})

	case DecisionAdjustParameters, DecisionAlternativeApproach:
		o.applyAdjustment(goal, record)
		log.Infof("adjusting parameters: %s", record.Reason)

	default:
		if goal.Status == GoalStatusInProgress {
			if out.eval.Status == GoalStatusPartial {
				goal.Status = GoalStatusPartial
				exhausted[goal.ID] = true
			} else {
				goal.Status = GoalStatusFailed
			}
		}
		telemetry.ObserveGoalSettled(string(goal.Status), goal.Attempts)
		o.history.RecordStatus(goal.ID, goal.Status, record.Reason)
		log.Warnf("goal %s: %s", goal.Status, record.Reason)
		o.settleBlocked(graph, exhausted)
	}
}

// applyAdjustment records the failed value in the constraints cache, swaps
// in the mutated parameters, and requeues the goal. The cache write happens
// here, before any future dispatch can read it.
func (o *ExecutionOrchestrator) applyAdjustment(goal *Goal, record *FailureRecord) {
	if record.AdjustedParameter != "" {
		failedValue := goal.Parameters[record.AdjustedParameter]
		if failedValue != "" {
			o.cache.Record(goal.Type, record.AdjustedParameter, failedValue, OutcomeFailed)
			goal.TriedAlternatives = append(goal.TriedAlternatives, failedValue)
		}
	}
	goal.Parameters = record.AdjustedParameters

	if record.Classification == FailureClassConfiguration {
		goal.ConfigurationAttempts++
	} else {
		goal.RecoverableAttempts++
	}
	goal.Status = GoalStatusPending
}

// settleBlocked marks every goal that can no longer be scheduled as blocked,
// recording which dependencies blocked it.
func (o *ExecutionOrchestrator) settleBlocked(graph *GoalGraph, exhausted map[string]bool) {
	for id, blockers := range o.scheduler.BlockedGoals(graph, exhausted) {
		goal := graph.Goal(id)
		if goal.Status.IsSettled() {
			continue
		}
		goal.Status = GoalStatusBlocked
		goal.BlockedBy = blockers
		telemetry.ObserveGoalSettled(string(GoalStatusBlocked), goal.Attempts)
		o.history.RecordStatus(id, GoalStatusBlocked, "blocked by "+joinIDs(blockers))
	}
}

// settleRemaining finalizes goals left unsettled when the loop exits. On
// cancellation or the iteration cap every unsettled goal is aborted; goals
// blocked by failures that happened earlier in the run were already settled
// as blocked and stay that way. Otherwise the leftovers are blocked, naming
// only the dependencies that did not achieve.
func (o *ExecutionOrchestrator) settleRemaining(graph *GoalGraph, exhausted map[string]bool, aborting bool) {
	if aborting {
		for _, goal := range graph.Unsettled() {
			if goal.Status == GoalStatusPartial && exhausted[goal.ID] {
				continue
			}
			goal.Status = GoalStatusAborted
			o.history.RecordStatus(goal.ID, GoalStatusAborted, "run aborted")
			telemetry.ObserveGoalSettled(string(GoalStatusAborted), goal.Attempts)
		}
		return
	}

	o.settleBlocked(graph, exhausted)
	for _, goal := range graph.Unsettled() {
		if goal.Status == GoalStatusPartial && exhausted[goal.ID] {
			continue
		}
		blockers := unachievedDependencies(graph, goal)
		goal.Status = GoalStatusBlocked
		goal.BlockedBy = blockers
		o.history.RecordStatus(goal.ID, GoalStatusBlocked, "blocked by "+joinIDs(blockers))
		telemetry.ObserveGoalSettled(string(GoalStatusBlocked), goal.Attempts)
	}
}

// unachievedDependencies returns the dependency IDs that did not reach
// achieved. Achieved dependencies are never reported as blockers.
func unachievedDependencies(graph *GoalGraph, goal *Goal) []string {
	var ids []string
	for _, depID := range goal.DependencyIDs {
		if dep := graph.Goal(depID); dep == nil || dep.Status != GoalStatusAchieved {
			ids = append(ids, depID)
		}
	}
	return ids
}

// buildOutputs derives the outputs an achieved goal exposes to dependents:
// the resolved parameters plus the provisioned resource identifier.
func buildOutputs(action *ResolvedAction, result *ActionResult) map[string]string {
	outputs := cloneParams(action.Parameters)
	if result.ResourceID != "" {
		outputs["resource_id"] = result.ResourceID
	}
	return outputs
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}
