// Package orchestrator fans a contribution out to the scoring agents, tracks
// their health and combines their decisions into an evaluation.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyluth/appraise/internal/agent"
	"github.com/dyluth/appraise/internal/consensus"
	"github.com/dyluth/appraise/pkg/ledger"
	"github.com/google/uuid"
)

const (
	// DefaultEvaluationTimeout bounds a single ProcessContribution call.
	DefaultEvaluationTimeout = 10 * time.Second

	// DefaultHealthCheckInterval is how often RunHealthChecks probes agents.
	DefaultHealthCheckInterval = 5 * time.Minute

	healthProbeTimeout = 5 * time.Second
)

// Engine owns the agent registry, the per-agent health status and the
// activity counters. All methods are safe for concurrent use.
type Engine struct {
	instanceName      string
	agents            []agent.Agent // fixed registry order
	evaluationTimeout time.Duration

	statusLock sync.RWMutex
	status     map[ledger.AgentType]*ledger.AgentState

	totalDecisions atomic.Int64
	lastActivityMs atomic.Int64
}

// Option customises an Engine.
type Option func(*Engine)

// WithInstanceName sets the instance reported in structured log events.
func WithInstanceName(name string) Option {
	return func(e *Engine) {
		e.instanceName = name
	}
}

// WithEvaluationTimeout bounds each ProcessContribution call. Zero disables the
// engine's own bound, leaving only the caller's deadline.
func WithEvaluationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.evaluationTimeout = d
	}
}

// NewEngine creates an engine over a fixed list of agents. Agents receive no
// contributions until Initialize has run.
func NewEngine(agents []agent.Agent, opts ...Option) *Engine {
	e := &Engine{
		instanceName:      "default",
		agents:            agents,
		evaluationTimeout: DefaultEvaluationTimeout,
		status:            make(map[ledger.AgentType]*ledger.AgentState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize prepares every agent in registry order. An agent that fails is put
// in the error state and the remaining agents still initialize. The returned
// error joins one *InitError per failed agent, or is nil.
func (e *Engine) Initialize(ctx context.Context) error {
	log.Printf("[Orchestrator] Initializing %d agents for instance '%s'", len(e.agents), e.instanceName)

	var errs []error
	for _, a := range e.agents {
		if err := e.initializeAgent(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}

	active := e.countStatus(ledger.AgentStatusActive)
	log.Printf("[Orchestrator] Initialization complete: %d/%d agents active", active, len(e.agents))

	return errors.Join(errs...)
}

func (e *Engine) initializeAgent(ctx context.Context, a agent.Agent) error {
	agentType := a.Type()

	if err := safeCall(func() error { return a.Initialize(ctx) }); err != nil {
		initErr := &InitError{AgentType: agentType, Err: err}
		e.setStatus(agentType, ledger.AgentStatusError, initErr.Error())

		log.Printf("[Orchestrator] WARN: %v", initErr)
		e.logEvent("agent_initialization_failed", map[string]interface{}{
			"agent_type": string(agentType),
			"error":      err.Error(),
		})
		return initErr
	}

	e.setStatus(agentType, ledger.AgentStatusActive, "")
	e.logEvent("agent_initialized", map[string]interface{}{
		"agent_type": string(agentType),
	})
	return nil
}

// Reinitialize re-runs one agent's Initialize. This is the only way out of the
// error state.
func (e *Engine) Reinitialize(ctx context.Context, agentType ledger.AgentType) error {
	a := e.agentByType(agentType)
	if a == nil {
		return fmt.Errorf("unknown agent type: %s", agentType)
	}
	return e.initializeAgent(ctx, a)
}

// ProcessContribution validates a contribution, has every active agent score it
// and combines the decisions.
//
// An invalid contribution is rejected with a *ledger.ValidationError before any
// agent sees it. Agent failures are not errors: the failed agents are listed in
// the evaluation, marked unhealthy, and the evaluation status becomes partial.
// Agents that outlive the engine's evaluation timeout are treated the same way.
// When the caller's ctx ends first the unfinished agents are listed as failed
// but keep their status, since the caller gave up rather than the agent.
// The status is also partial when some registered agents were not active.
func (e *Engine) ProcessContribution(ctx context.Context, c *ledger.Contribution) (*ledger.Evaluation, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	fingerprint := ledger.Fingerprint(c)

	callerCtx := ctx
	if e.evaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.evaluationTimeout)
		defer cancel()
	}

	active := e.activeAgents()
	results := dispatch(ctx, active, c)

	decisions := make([]*ledger.Decision, 0, len(results))
	var failed []ledger.AgentType
	now := time.Now().UnixMilli()

	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.agentType)
			if abandonedByCaller(callerCtx, r.err) {
				log.Printf("[Orchestrator] Caller gave up before %s finished: %v", r.agentType, callerCtx.Err())
				continue
			}
			e.markUnhealthy(r.agentType, r.err)

			log.Printf("[Orchestrator] WARN: %v", r.err)
			e.logEvent("agent_evaluation_failed", map[string]interface{}{
				"agent_type":  string(r.agentType),
				"fingerprint": fingerprint,
				"error":       r.err.Error(),
			})
			continue
		}
		decisions = append(decisions, r.decision)
		e.touch(r.agentType, now)
	}

	e.totalDecisions.Add(int64(len(decisions)))
	e.lastActivityMs.Store(now)

	status := ledger.EvaluationStatusProcessed
	if len(failed) > 0 || len(active) < e.AgentCount() {
		status = ledger.EvaluationStatusPartial
	}

	evaluation := &ledger.Evaluation{
		ID:           uuid.New().String(),
		Fingerprint:  fingerprint,
		Developer:    c.Developer,
		Project:      c.Project,
		Decisions:    decisions,
		Consensus:    consensus.Estimate(decisions),
		FailedAgents: failed,
		Status:       status,
		TimestampMs:  now,
	}

	data := map[string]interface{}{
		"evaluation_id": evaluation.ID,
		"fingerprint":   fingerprint,
		"developer":     c.Developer,
		"decisions":     len(decisions),
		"failed_agents": len(failed),
		"active_agents": len(active),
		"status":        string(status),
		"latency_ms":    time.Since(startTime).Milliseconds(),
	}
	if evaluation.Consensus != nil {
		data["estimated_reward"] = evaluation.Consensus.EstimatedReward
		data["agreement"] = string(evaluation.Consensus.Agreement)
	}
	e.logEvent("contribution_processed", data)

	return evaluation, nil
}

// PerformHealthCheck probes every active or unhealthy agent. Agents that pass
// become active, agents that fail become unhealthy. Agents in the error state
// are left alone. Agents without a probe are considered healthy.
func (e *Engine) PerformHealthCheck(ctx context.Context) map[ledger.AgentType]ledger.AgentState {
	healthy, unhealthy := 0, 0

	for _, a := range e.agents {
		agentType := a.Type()
		current, ok := e.statusOf(agentType)
		if !ok || current == ledger.AgentStatusError {
			continue
		}

		err := e.probe(ctx, a)
		if err != nil {
			unhealthy++
			e.markUnhealthy(agentType, err)
			log.Printf("[Orchestrator] WARN: Agent %s failed health check: %v", agentType, err)
			continue
		}

		healthy++
		if current != ledger.AgentStatusActive {
			log.Printf("[Orchestrator] Agent %s recovered", agentType)
		}
		e.setStatus(agentType, ledger.AgentStatusActive, "")
	}

	e.logEvent("health_check_complete", map[string]interface{}{
		"healthy":   healthy,
		"unhealthy": unhealthy,
		"error":     e.countStatus(ledger.AgentStatusError),
	})

	return e.AgentStatus()
}

func (e *Engine) probe(ctx context.Context, a agent.Agent) error {
	checker, ok := a.(agent.HealthChecker)
	if !ok {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	return safeCall(func() error { return checker.HealthCheck(probeCtx) })
}

// RunHealthChecks calls PerformHealthCheck on every tick of interval until ctx
// is cancelled.
func (e *Engine) RunHealthChecks(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.PerformHealthCheck(ctx)
		}
	}
}

// Run starts the HTTP server and the periodic health checks, and blocks until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context, server *HealthServer, healthInterval time.Duration) error {
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	defer server.Shutdown(context.Background())

	log.Printf("[Orchestrator] Starting for instance '%s'", e.instanceName)
	e.RunHealthChecks(ctx, healthInterval)
	log.Printf("[Orchestrator] Shutting down...")

	return nil
}

// Shutdown tears down agents that hold resources. Every agent gets a chance
// to shut down; failures are logged and joined into the returned error.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	for _, a := range e.agents {
		s, ok := a.(agent.Shutdowner)
		if !ok {
			continue
		}
		if err := safeCall(func() error { return s.Shutdown(ctx) }); err != nil {
			log.Printf("[Orchestrator] WARN: Agent %s failed to shut down: %v", a.Type(), err)
			errs = append(errs, fmt.Errorf("agent %s: %w", a.Type(), err))
		}
	}

	log.Printf("[Orchestrator] Shutdown complete")
	return errors.Join(errs...)
}

// AgentStatus returns a snapshot of every initialized agent's state.
func (e *Engine) AgentStatus() map[ledger.AgentType]ledger.AgentState {
	e.statusLock.RLock()
	defer e.statusLock.RUnlock()

	snapshot := make(map[ledger.AgentType]ledger.AgentState, len(e.status))
	for agentType, state := range e.status {
		snapshot[agentType] = *state
	}
	return snapshot
}

// TotalDecisions is the number of decisions produced since start.
func (e *Engine) TotalDecisions() int64 {
	return e.totalDecisions.Load()
}

// LastActivity is when the last contribution was processed, or the zero time.
func (e *Engine) LastActivity() time.Time {
	ms := e.lastActivityMs.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// AgentCount is the number of registered agents, whatever their state.
func (e *Engine) AgentCount() int {
	return len(e.agents)
}

// InstanceName returns the instance reported in log events.
func (e *Engine) InstanceName() string {
	return e.instanceName
}

func (e *Engine) activeAgents() []agent.Agent {
	e.statusLock.RLock()
	defer e.statusLock.RUnlock()

	active := make([]agent.Agent, 0, len(e.agents))
	for _, a := range e.agents {
		if state, ok := e.status[a.Type()]; ok && state.Status == ledger.AgentStatusActive {
			active = append(active, a)
		}
	}
	return active
}

func (e *Engine) agentByType(agentType ledger.AgentType) agent.Agent {
	for _, a := range e.agents {
		if a.Type() == agentType {
			return a
		}
	}
	return nil
}

func (e *Engine) statusOf(agentType ledger.AgentType) (ledger.AgentStatus, bool) {
	e.statusLock.RLock()
	defer e.statusLock.RUnlock()

	state, ok := e.status[agentType]
	if !ok {
		return "", false
	}
	return state.Status, true
}

func (e *Engine) countStatus(status ledger.AgentStatus) int {
	e.statusLock.RLock()
	defer e.statusLock.RUnlock()

	n := 0
	for _, state := range e.status {
		if state.Status == status {
			n++
		}
	}
	return n
}

func (e *Engine) setStatus(agentType ledger.AgentType, status ledger.AgentStatus, message string) {
	e.statusLock.Lock()
	defer e.statusLock.Unlock()

	state, ok := e.status[agentType]
	if !ok {
		state = &ledger.AgentState{}
		e.status[agentType] = state
	}
	state.Status = status
	state.Error = message
}

// abandonedByCaller reports whether err only reflects the caller's ctx ending.
func abandonedByCaller(callerCtx context.Context, err error) bool {
	if callerCtx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// markUnhealthy demotes an agent after a failure. Agents in the error state
// stay there.
func (e *Engine) markUnhealthy(agentType ledger.AgentType, cause error) {
	e.statusLock.Lock()
	defer e.statusLock.Unlock()

	state, ok := e.status[agentType]
	if !ok || state.Status == ledger.AgentStatusError {
		return
	}
	state.Status = ledger.AgentStatusUnhealthy
	state.Error = cause.Error()
}

func (e *Engine) touch(agentType ledger.AgentType, nowMs int64) {
	e.statusLock.Lock()
	defer e.statusLock.Unlock()

	if state, ok := e.status[agentType]; ok {
		state.LastActivityMs = nowMs
	}
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "orchestrator"
	data["event_type"] = eventType
	data["instance"] = e.instanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
