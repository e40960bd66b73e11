package authz

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/appops/pkg/auth"
)

// Rule is an operator restriction. When Expr evaluates to true for a call,
// the call resolves to ignored regardless of the stored mode.
type Rule struct {
	Name string `json:"name" yaml:"name"`
	Expr string `json:"expr" yaml:"expr"`
}

// Subject is the input a restriction rule is evaluated against.
type Subject struct {
	Op          string
	UID         int
	Package     string
	Attribution string
}

type compiledRule struct {
	name string
	prg  cel.Program
}

// Restrictions evaluates CEL rules over (op, uid, user, pkg, attribution).
// A nil *Restrictions matches nothing.
type Restrictions struct {
	env      *cel.Env
	mu       sync.RWMutex
	prgCache map[string]cel.Program
	rules    []compiledRule
	logger   *slog.Logger
}

// NewRestrictions compiles rules. Any compile error rejects the whole set.
func NewRestrictions(rules []Rule) (*Restrictions, error) {
	env, err := cel.NewEnv(
		cel.Variable("op", cel.StringType),
		cel.Variable("uid", cel.IntType),
		cel.Variable("user", cel.IntType),
		cel.Variable("pkg", cel.StringType),
		cel.Variable("attribution", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	r := &Restrictions{
		env:      env,
		prgCache: make(map[string]cel.Program),
		logger:   slog.Default().With("component", "restrictions"),
	}
	for _, rule := range rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("restriction rule with expr %q has no name", rule.Expr)
		}
		prg, err := r.program(rule.Expr)
		if err != nil {
			return nil, fmt.Errorf("restriction %s: %w", rule.Name, err)
		}
		r.rules = append(r.rules, compiledRule{name: rule.Name, prg: prg})
	}
	return r, nil
}

func (r *Restrictions) program(expr string) (cel.Program, error) {
	r.mu.RLock()
	prg, hit := r.prgCache[expr]
	r.mu.RUnlock()
	if hit {
		return prg, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prg, hit = r.prgCache[expr]; hit {
		return prg, nil
	}

	ast, issues := r.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("compile: expression must be bool, got %s", ast.OutputType())
	}
	p, err := r.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	r.prgCache[expr] = p
	return p, nil
}

// Len returns the number of rules.
func (r *Restrictions) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Match returns the name of the first rule restricting s. A rule that fails
// to evaluate counts as a match.
func (r *Restrictions) Match(s Subject) (string, bool) {
	if r == nil {
		return "", false
	}
	input := map[string]any{
		"op":          s.Op,
		"uid":         int64(s.UID),
		"user":        int64(auth.UserID(s.UID)),
		"pkg":         s.Package,
		"attribution": s.Attribution,
	}
	for _, rule := range r.rules {
		out, _, err := rule.prg.Eval(input)
		if err != nil {
			r.logger.Warn("restriction evaluation failed", "rule", rule.name, "error", err)
			return rule.name, true
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return rule.name, true
		}
	}
	return "", false
}
