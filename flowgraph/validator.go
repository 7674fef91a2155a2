package flowgraph

import (
	"log/slog"

	"github.com/c360/visualscript/graph"
	"github.com/c360/visualscript/metric"
)

// Validation statuses
const (
	StatusValid    = "valid"
	StatusWarnings = "warnings"
	StatusErrors   = "errors"
)

// ValidationResult groups the issues found in a graph. Callers decide whether a
// graph with errors may still run.
type ValidationResult struct {
	Status   string  `json:"validation_status"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Issues returns errors followed by warnings
func (r *ValidationResult) Issues() []Issue {
	return append(append([]Issue{}, r.Errors...), r.Warnings...)
}

// Valid reports whether no errors were found
func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

// Validator runs every structural check over a graph
type Validator struct {
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewValidator creates a validator. metrics may be nil.
func NewValidator(logger *slog.Logger, metrics *metric.Metrics) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger, metrics: metrics}
}

// Validate collects link, cycle and reachability issues of g
func (v *Validator) Validate(g *graph.Graph) *ValidationResult {
	result := &ValidationResult{
		Status:   StatusValid,
		Errors:   []Issue{},
		Warnings: []Issue{},
	}

	if len(g.Nodes()) == 0 {
		result.Warnings = append(result.Warnings, Issue{
			Type:     IssueEmptyGraph,
			Severity: SeverityWarning,
			Message:  "graph contains no nodes",
		})
		result.Status = StatusWarnings
		v.record(result)
		return result
	}

	fg := NewFlowGraph(g)
	for _, issues := range [][]Issue{fg.ValidateLinks(), fg.ValidateAcyclic(), fg.ValidateReachability()} {
		for _, issue := range issues {
			if issue.Severity == SeverityError {
				result.Errors = append(result.Errors, issue)
			} else {
				result.Warnings = append(result.Warnings, issue)
			}
		}
	}

	if len(result.Errors) > 0 {
		result.Status = StatusErrors
	} else if len(result.Warnings) > 0 {
		result.Status = StatusWarnings
	}

	v.logger.Debug("Graph validation complete",
		"graph", g.Name,
		"status", result.Status,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
		"edges", len(fg.edges))
	v.record(result)
	return result
}

func (v *Validator) record(result *ValidationResult) {
	if v.metrics == nil {
		return
	}
	for _, issue := range result.Issues() {
		v.metrics.RecordValidationIssue(issue.Type, issue.Severity)
	}
}

// ValidateGraphAcyclic reports synchronous flow cycles in g
func ValidateGraphAcyclic(g *graph.Graph) []Issue {
	return NewFlowGraph(g).ValidateAcyclic()
}

// ValidateGraphLinks reports unresolvable or ill-typed links in g
func ValidateGraphLinks(g *graph.Graph) []Issue {
	return NewFlowGraph(g).ValidateLinks()
}
