// Package policy evaluates a CEL expression against candidate-entry
// aggregation facts to decide whether a generated entry needs a human look
// before submission.
package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
)

// Facts are the aggregation facts one candidate exposes to the expression
type Facts struct {
	// BoundSpread classifies how far the upper bounds observed across
	// flavors disagree: 0 none, 1 patch, 2 minor, 3 major
	BoundSpread int
	// UpperBounds is the number of distinct upper bounds observed
	UpperBounds int
	// FlavorCount is the number of distinct flavors affected
	FlavorCount int
	// PackageCount is the number of affected (package, flavor) pairs
	PackageCount int
	// HasCVE reports whether the record carries a CVE identifier
	HasCVE bool
}

// Decision is the outcome of one evaluation
type Decision struct {
	NeedsReview bool
	Reason      string
}

// Config defines a CEL-based review policy
type Config struct {
	// Expression must evaluate to true for the candidate to pass without
	// review. Available variables:
	//   - boundSpread: int, disagreement level between observed upper bounds
	//   - upperBounds: int, number of distinct upper bounds
	//   - flavorCount: int, number of affected flavors
	//   - packageCount: int, number of affected (package, flavor) pairs
	//   - hasCVE: bool, whether the record carries a CVE identifier
	Expression string `yaml:"expression" json:"expression"`

	// FailureMessage is recorded as the review reason when the expression
	// fails (optional)
	FailureMessage string `yaml:"failureMessage" json:"failureMessage"`
}

// Engine compiles the review expression once and evaluates it per candidate
type Engine struct {
	logger     *slog.Logger
	config     Config
	celProgram cel.Program
}

// NewEngine creates a review-policy engine. With no expression configured,
// candidates whose upper bounds disagree beyond patch level get flagged.
func NewEngine(logger *slog.Logger, config Config) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if config.Expression == "" {
		config.Expression = `boundSpread <= 1`
		config.FailureMessage = "upper bounds disagree beyond patch level"
	}

	env, err := cel.NewEnv(
		cel.Variable("boundSpread", cel.IntType),
		cel.Variable("upperBounds", cel.IntType),
		cel.Variable("flavorCount", cel.IntType),
		cel.Variable("packageCount", cel.IntType),
		cel.Variable("hasCVE", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(config.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile review expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("review expression must return a boolean, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Engine{
		logger:     logger.With("component", "policy"),
		config:     config,
		celProgram: program,
	}, nil
}

// Evaluate runs the review expression for one candidate
func (e *Engine) Evaluate(ctx context.Context, vulnID string, facts Facts) (Decision, error) {
	celInput := map[string]interface{}{
		"boundSpread":  facts.BoundSpread,
		"upperBounds":  facts.UpperBounds,
		"flavorCount":  facts.FlavorCount,
		"packageCount": facts.PackageCount,
		"hasCVE":       facts.HasCVE,
	}

	out, _, err := e.celProgram.Eval(celInput)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate review policy: %w", err)
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return Decision{}, fmt.Errorf("review expression did not return a boolean: %v", out.Value())
	}

	if passed {
		return Decision{}, nil
	}

	reason := e.config.FailureMessage
	if reason == "" {
		reason = fmt.Sprintf("review expression failed: %s", e.config.Expression)
	}
	e.logger.Debug("candidate flagged for review",
		"vuln_id", vulnID,
		"bound_spread", facts.BoundSpread,
		"upper_bounds", facts.UpperBounds,
		"expression", e.config.Expression)

	return Decision{NeedsReview: true, Reason: reason}, nil
}
