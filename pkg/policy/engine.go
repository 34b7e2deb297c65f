package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/stowage/pkg/catalogue"
	"github.com/openfroyo/stowage/pkg/engine"
)

var _ engine.PolicyEngine = (*Engine)(nil)

// ViolationHandler sees every violation an evaluation finds, before the
// mode decides whether it blocks.
type ViolationHandler func(ctx context.Context, violation engine.PolicyViolation)

// Engine admits or rejects import batches by evaluating Rego policies.
// Each policy's package must define a `deny` set.
type Engine struct {
	logger      zerolog.Logger
	mode        Mode
	onViolation ViolationHandler

	mu       sync.RWMutex
	builtins map[string]*rule
	active   map[string]*rule
}

// rule is a policy with its deny query prepared.
type rule struct {
	Policy
	deny rego.PreparedEvalQuery
}

// Option configures an Engine.
type Option func(*Engine)

// WithMode sets the enforcement mode. The default is ModeEnforcing.
func WithMode(mode Mode) Option {
	return func(e *Engine) {
		if mode != "" {
			e.mode = mode
		}
	}
}

// WithViolationHandler registers fn for every violation found.
func WithViolationHandler(fn ViolationHandler) Option {
	return func(e *Engine) { e.onViolation = fn }
}

// NewEngine compiles the built-in policies and returns a ready engine.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:   logger.With().Str("component", "policy-engine").Logger(),
		mode:     ModeEnforcing,
		builtins: make(map[string]*rule),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mode != ModeEnforcing && e.mode != ModeAdvisory {
		return nil, fmt.Errorf("unknown policy mode %q", e.mode)
	}

	rules, err := compileAll(context.Background(), GetBuiltinPolicies())
	if err != nil {
		return nil, fmt.Errorf("built-in policies: %w", err)
	}
	for _, r := range rules {
		e.builtins[r.Name] = r
	}
	e.active = cloneRules(e.builtins)

	e.logger.Debug().Int("builtin", len(rules)).Str("mode", string(e.mode)).Msg("Policy engine ready")
	return e, nil
}

// Mode returns the enforcement mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

func compile(ctx context.Context, p Policy) (*rule, error) {
	mod, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return nil, err
	}
	if mod == nil || mod.Package == nil {
		return nil, fmt.Errorf("no package declaration")
	}

	query := mod.Package.Path.String() + ".deny"
	prepared, err := rego.New(
		rego.ParsedModule(mod),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &rule{Policy: p, deny: prepared}, nil
}

// compileAll compiles every policy or none.
func compileAll(ctx context.Context, policies []Policy) ([]*rule, error) {
	rules := make([]*rule, 0, len(policies))
	for _, p := range policies {
		r, err := compile(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("compile policy %s: %w", p.Name, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func cloneRules(src map[string]*rule) map[string]*rule {
	dst := make(map[string]*rule, len(src))
	for name, r := range src {
		cp := *r
		dst[name] = &cp
	}
	return dst
}

// EvaluateImport runs every enabled policy, in name order, against an import
// batch.
//
// Critical violations always reject the batch. Error violations reject it in
// enforcing mode and become warnings in advisory mode. Lower severities are
// warnings. A policy that fails to evaluate yields a warning, never a
// rejection.
func (e *Engine) EvaluateImport(ctx context.Context, req *engine.ImportRequest) (*engine.PolicyResult, error) {
	started := time.Now()

	op := engine.OpImportItems
	if req.Kind == engine.ImportContainers {
		op = engine.OpImportContainer
	}
	input := &PolicyInput{
		Kind:       req.Kind,
		Items:      req.Items,
		Containers: req.Containers,
		Limits:     req.Limits,
		Context: &PolicyContext{
			Timestamp: req.Timestamp,
			Today:     req.Timestamp.Format(catalogue.ExpiryLayout),
			Operation: op,
			Mode:      e.mode,
		},
	}

	e.mu.RLock()
	rules := e.ordered()
	e.mu.RUnlock()

	result := &engine.PolicyResult{}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		found, err := r.evaluate(ctx, input)
		if err != nil {
			e.logger.Warn().Err(err).Str("policy", r.Name).Str("kind", string(req.Kind)).Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings, fmt.Sprintf("Policy %s evaluation failed: %v", r.Name, err))
			continue
		}

		for _, v := range found {
			if e.onViolation != nil {
				e.onViolation(ctx, v)
			}
			if e.blocks(Severity(v.Severity)) {
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, warningText(v))
			}
		}
	}

	result.Allowed = len(result.Violations) == 0
	result.EvaluatedAt = time.Now()

	e.logger.Debug().
		Str("kind", string(req.Kind)).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("took", time.Since(started)).
		Msg("Import evaluated")
	return result, nil
}

func (e *Engine) blocks(s Severity) bool {
	if s == SeverityCritical {
		return true
	}
	return e.mode == ModeEnforcing && s.Blocking()
}

func warningText(v engine.PolicyViolation) string {
	if v.RecordID == "" {
		return v.Policy + ": " + v.Message
	}
	return fmt.Sprintf("%s: %s (%s)", v.Policy, v.Message, v.RecordID)
}

// evaluate returns the members of the rule's deny set as violations.
func (r *rule) evaluate(ctx context.Context, input *PolicyInput) ([]engine.PolicyViolation, error) {
	rs, err := r.deny.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var out []engine.PolicyViolation
	for _, res := range rs {
		for _, expr := range res.Expressions {
			entries, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, entry := range entries {
				out = append(out, r.violation(entry))
			}
		}
	}
	return out, nil
}

// violation converts one deny entry. A string is the message; an object may
// carry message, severity and record.
func (r *rule) violation(entry interface{}) engine.PolicyViolation {
	v := engine.PolicyViolation{Policy: r.Name, Severity: string(r.Severity)}

	obj, ok := entry.(map[string]interface{})
	if !ok {
		if s, isString := entry.(string); isString {
			v.Message = s
		} else {
			v.Message = fmt.Sprint(entry)
		}
		return v
	}
	if s, ok := obj["message"].(string); ok {
		v.Message = s
	}
	if s, ok := obj["severity"].(string); ok && s != "" {
		v.Severity = s
	}
	if s, ok := obj["record"].(string); ok {
		v.RecordID = s
	}
	return v
}

// ordered returns the active rules sorted by name. Callers hold e.mu.
func (e *Engine) ordered() []*rule {
	rules := make([]*rule, 0, len(e.active))
	for _, r := range e.active {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// LoadPolicies reads policy files under paths and installs them with Apply.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}
	return e.Apply(ctx, policies)
}

// Apply installs policies, replacing any active policy with the same name.
// Nothing is installed when one of them fails to compile.
func (e *Engine) Apply(ctx context.Context, policies []Policy) error {
	rules, err := compileAll(ctx, policies)
	if err != nil {
		e.logger.Error().Err(err).Msg("Rejected policy set")
		return err
	}

	e.mu.Lock()
	for _, r := range rules {
		e.active[r.Name] = r
	}
	total := len(e.active)
	e.mu.Unlock()

	e.logger.Info().Int("applied", len(rules)).Int("active", total).Msg("Policies applied")
	return nil
}

// ReloadPolicies reads paths again and installs the result with Replace.
func (e *Engine) ReloadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("reload policies: %w", err)
	}
	return e.Replace(ctx, policies)
}

// Replace makes policies the complete custom set: built-ins are restored
// and every other custom policy is dropped. Nothing changes when one of them
// fails to compile.
func (e *Engine) Replace(ctx context.Context, policies []Policy) error {
	rules, err := compileAll(ctx, policies)
	if err != nil {
		return err
	}

	next := cloneRules(e.builtins)
	for _, r := range rules {
		next[r.Name] = r
	}

	e.mu.Lock()
	e.active = next
	e.mu.Unlock()

	e.logger.Info().Int("custom", len(rules)).Int("active", len(next)).Msg("Policy set replaced")
	return nil
}

// GetPolicy returns a copy of the active policy called name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.active[name]
	if !ok {
		return nil, fmt.Errorf("no policy named %q", name)
	}
	p := r.Policy
	return &p, nil
}

// ListPolicies returns the active policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := e.ordered()
	out := make([]Policy, len(rules))
	for i, r := range rules {
		out[i] = r.Policy
	}
	return out
}

// EnablePolicy turns the named policy on.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy turns the named policy off until enabled again or replaced.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.active[name]
	if !ok {
		return fmt.Errorf("no policy named %q", name)
	}
	// Copy so rules already handed to a running evaluation keep their flag.
	cp := *r
	cp.Enabled = on
	e.active[name] = &cp

	e.logger.Info().Str("policy", name).Bool("enabled", on).Msg("Policy toggled")
	return nil
}
