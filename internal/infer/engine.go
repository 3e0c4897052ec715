// Package infer is the evaluation entry point: it compiles a rule set,
// resolves its free predicate names, evaluates the fixpoint and answers the
// requested queries.
package infer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"deduce/internal/eval"
	"deduce/internal/logging"
	"deduce/internal/relation"
	"deduce/internal/rules"
	"deduce/internal/scope"
)

// Config holds engine configuration.
type Config struct {
	MaxIterations    int
	SemiNaive        bool
	Trace            bool
	CompileCacheSize int
	// NestedDepth bounds how deep rule sets found in scope may nest.
	NestedDepth int
	// EvalTimeout applies when the caller's context has no deadline.
	EvalTimeout      time.Duration
	BatchConcurrency int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    eval.DefaultMaxIterations,
		SemiNaive:        true,
		CompileCacheSize: 128,
		NestedDepth:      8,
	}
}

// Request is one infer call.
type Request struct {
	// RuleSet is compiled through the engine's cache. Program, when set,
	// is used directly instead.
	RuleSet *rules.RuleSet
	Program *rules.Program

	// Bindings override every other resolution; later entries win.
	Bindings []scope.Binding
	// Env is the scope chain captured at the call site.
	Env scope.Environment
	// Queries lists what to return. When empty every derived predicate is
	// returned and handed to Registrar.
	Queries   []Query
	Registrar scope.Registrar
}

// Engine evaluates requests. It is safe for concurrent use: each call keeps
// its working relations private, and the compile cache is synchronised.
type Engine struct {
	config Config
	cache  *lru.Cache[string, *rules.Program]
}

// NewEngine creates an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.CompileCacheSize <= 0 {
		cfg.CompileCacheSize = DefaultConfig().CompileCacheSize
	}
	if cfg.NestedDepth <= 0 {
		cfg.NestedDepth = DefaultConfig().NestedDepth
	}
	cache, err := lru.New[string, *rules.Program](cfg.CompileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create compile cache: %w", err)
	}
	return &Engine{config: cfg, cache: cache}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Compile returns the program for rs, compiling it on a cache miss.
func (e *Engine) Compile(rs *rules.RuleSet) (*rules.Program, error) {
	if rs == nil {
		return nil, errors.New("no rule set to compile")
	}
	key := rs.Fingerprint()
	if p, ok := e.cache.Get(key); ok {
		metrics.compileHits.Inc()
		logging.Audit().CompileLookup(key, true, len(p.Clauses()))
		return p, nil
	}
	metrics.compileMisses.Inc()

	p, err := rules.Compile(rs)
	if err != nil {
		logging.Get(logging.CategoryCompile).Warn("rule set %s rejected: %v", rs.Name, err)
		return nil, err
	}
	logging.Compile("compiled rule set %s: %d clauses, derived %v, free %v", rs.Name, len(p.Clauses()), p.Derived(), p.Free())
	logging.Audit().CompileLookup(key, false, len(p.Clauses()))
	e.cache.Add(key, p)
	return p, nil
}

func (e *Engine) program(req Request) (*rules.Program, error) {
	if req.Program != nil {
		return req.Program, nil
	}
	return e.Compile(req.RuleSet)
}

func (e *Engine) evalOptions(trace bool) eval.Options {
	return eval.Options{
		MaxIterations: e.config.MaxIterations,
		SemiNaive:     e.config.SemiNaive,
		Trace:         e.config.Trace || trace,
	}
}

// Infer evaluates req. Either every query is answered from a complete
// fixpoint or an error is returned with no result.
func (e *Engine) Infer(ctx context.Context, req Request) (*Result, error) {
	return e.infer(ctx, req, false)
}

func (e *Engine) infer(ctx context.Context, req Request, trace bool) (*Result, error) {
	runID := uuid.NewString()
	log := logging.Get(logging.CategoryInfer).With("run", runID)

	if e.config.EvalTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.config.EvalTimeout)
			defer cancel()
		}
	}

	start := time.Now()
	res, err := e.run(ctx, req, e.evalOptions(trace), nil)
	elapsed := time.Since(start)

	metrics.calls.WithLabelValues(outcome(err)).Inc()
	metrics.durationSecs.Observe(elapsed.Seconds())
	if err != nil {
		log.Warn("infer failed after %v: %v", elapsed, err)
		logging.Audit().InferRun(runID, requestName(req), 0, elapsed, err)
		return nil, err
	}

	res.RunID = runID
	res.Duration = elapsed
	metrics.rounds.Observe(float64(res.Rounds))
	metrics.derivedTuples.Observe(float64(res.derivedCount()))
	log.Info("infer %s: %d answers, %d rounds in %v", res.program.Name(), len(res.Relations), res.Rounds, elapsed)
	logging.Audit().InferRun(runID, res.program.Name(), res.derivedCount(), elapsed, nil)
	return res, nil
}

func (e *Engine) run(ctx context.Context, req Request, opts eval.Options, stack []string) (*Result, error) {
	prog, err := e.program(req)
	if err != nil {
		return nil, err
	}
	stack = append(stack[:len(stack):len(stack)], prog.Fingerprint())

	rv := scope.NewResolver(req.Bindings, req.Env)
	resolution, err := rv.Program(prog)
	if err != nil {
		return nil, err
	}
	for _, n := range resolution.Nested() {
		rel, err := e.nested(ctx, prog, n, req, opts, stack)
		if err != nil {
			return nil, err
		}
		arity, _ := prog.Arity(n.Name)
		if !relation.CompatibleArity(arity, rel.Arity()) {
			return nil, &rules.MalformedRuleError{
				RuleSet: prog.Name(),
				Reason:  fmt.Sprintf("%s is used with arity %d but the nested rule set derives arity %d", n.Name, arity, rel.Arity()),
			}
		}
		resolution.SetRelation(n.Name, rel)
	}

	// Work out what to evaluate before evaluating anything, so bad queries
	// fail fast.
	var targets []string
	outside := make(map[string]relation.Relation)
	for _, q := range req.Queries {
		if q.Predicate == "" {
			return nil, fmt.Errorf("%w: empty predicate name", ErrInvalidQuery)
		}
		if r, ok := resolution.Lookup(q.Predicate); ok {
			if r.Source == scope.SourceDerived {
				targets = append(targets, q.Predicate)
			}
			continue
		}
		if _, ok := outside[q.Predicate]; ok {
			continue
		}
		r, err := rv.Name(q.Predicate)
		if err != nil {
			return nil, err
		}
		if r.Source == scope.SourceNested {
			rel, err := e.nested(ctx, prog, r, req, opts, stack)
			if err != nil {
				return nil, err
			}
			r.Relation = rel
		}
		outside[q.Predicate] = r.Relation
	}

	bases := resolution.Bases()
	derived := make(map[string]relation.Relation)
	rounds := 0
	var trace *eval.Trace
	if len(req.Queries) == 0 || len(targets) > 0 {
		out, err := eval.Evaluate(ctx, prog, bases, targets, opts)
		if err != nil {
			return nil, err
		}
		derived, rounds, trace = out.Relations, out.Rounds, out.Trace
	}

	res := &Result{
		Relations:  make(map[string]relation.Relation),
		Queries:    req.Queries,
		Rounds:     rounds,
		program:    prog,
		resolution: resolution,
		trace:      trace,
		bases:      bases,
		derived:    derived,
	}

	if len(req.Queries) == 0 {
		for _, name := range prog.Derived() {
			rel, ok := derived[name]
			if !ok {
				continue
			}
			res.Relations[name] = rel
			if req.Registrar != nil {
				if err := req.Registrar.Register(name, rel); err != nil {
					return nil, fmt.Errorf("failed to register %s: %w", name, err)
				}
			}
		}
		return res, nil
	}

	for _, q := range req.Queries {
		rel, ok := derived[q.Predicate]
		if !ok {
			rel, ok = bases[q.Predicate]
		}
		if !ok {
			rel = outside[q.Predicate]
		}
		answer, err := q.apply(rel)
		if err != nil {
			return nil, err
		}
		res.Relations[q.String()] = answer
	}
	return res, nil
}

// nested evaluates the rule set a name resolved to, with the caller's
// bindings and environment. outer is the program that referenced the name.
func (e *Engine) nested(ctx context.Context, outer *rules.Program, r scope.Resolved, req Request, opts eval.Options, stack []string) (relation.Relation, error) {
	sub := Request{Bindings: req.Bindings, Env: req.Env, Queries: []Query{Name(r.Name)}}
	switch n := r.Nested.(type) {
	case *rules.RuleSet:
		sub.RuleSet = n
	case *rules.Program:
		sub.Program = n
	}
	prog, err := e.program(sub)
	if err != nil {
		return relation.Relation{}, err
	}

	clause := ""
	if c, ok := outer.FirstUse(r.Name); ok {
		clause = c.String()
	}
	unresolved := func(format string, args ...any) error {
		return &scope.UnresolvedReferenceError{Name: r.Name, Clause: clause, Reason: fmt.Sprintf(format, args...)}
	}
	for _, fp := range stack {
		if fp == prog.Fingerprint() {
			return relation.Relation{}, unresolved("rule set %s refers back to itself through %s", prog.Name(), r.Frame.Name)
		}
	}
	if len(stack) > e.config.NestedDepth {
		return relation.Relation{}, unresolved("rule sets nested deeper than %d", e.config.NestedDepth)
	}

	metrics.nestedRuleSets.Inc()
	logging.InferDebug("%s resolves to nested rule set %s", r.Name, prog.Name())
	sub.Program = prog
	out, err := e.run(ctx, sub, opts, stack)
	if err != nil {
		return relation.Relation{}, err
	}
	return out.Relations[r.Name], nil
}

func requestName(req Request) string {
	switch {
	case req.Program != nil:
		return req.Program.Name()
	case req.RuleSet != nil:
		return req.RuleSet.Name
	}
	return ""
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, rules.ErrMalformedRule):
		return "malformed"
	case errors.Is(err, scope.ErrUnresolvedReference):
		return "unresolved"
	case errors.Is(err, eval.ErrNonTerminating):
		return "non_terminating"
	case errors.Is(err, ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns a shared engine with DefaultConfig.
func Default() *Engine {
	defaultOnce.Do(func() {
		eng, err := NewEngine(DefaultConfig())
		if err != nil {
			panic(err)
		}
		defaultEngine = eng
	})
	return defaultEngine
}

// Infer evaluates rs on the default engine and returns the answer to each
// query, keyed by the query text. Queries are predicate names or patterns
// such as "path(1, _)".
func Infer(ctx context.Context, rs *rules.RuleSet, env scope.Environment, bindings []scope.Binding, queries ...string) (map[string]relation.Relation, error) {
	qs := make([]Query, 0, len(queries))
	for _, text := range queries {
		q, err := ParseQuery(text)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	res, err := Default().Infer(ctx, Request{RuleSet: rs, Bindings: bindings, Env: env, Queries: qs})
	if err != nil {
		return nil, err
	}
	return res.Relations, nil
}
