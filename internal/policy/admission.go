package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed admission.rego
var builtinAdmission string

const admissionQuery = "data.agentcell.admission.deny"

// Admission evaluates Rego admission rules against a composed document.
// It complements Validate with site-specific rules; it never replaces the
// fixed assertions.
type Admission struct {
	query   rego.PreparedEvalQuery
	modules []string
}

// NewAdmission compiles the built-in rules together with the given extra
// modules (name -> Rego source).
func NewAdmission(ctx context.Context, extra map[string]string) (*Admission, error) {
	opts := []func(*rego.Rego){
		rego.Query(admissionQuery),
		rego.Module("builtin/admission.rego", builtinAdmission),
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, rego.Module(name, extra[name]))
	}

	pq, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing admission rules: %w", err)
	}

	slog.Debug("admission rules compiled", "extra_modules", len(names))
	return &Admission{query: pq, modules: names}, nil
}

// LoadAdmissionModules reads Rego sources from the given files or
// directories. Directories contribute every *.rego file they contain.
func LoadAdmissionModules(paths []string) (map[string]string, error) {
	modules := make(map[string]string)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("admission policy %s: %w", p, err)
		}

		files := []string{p}
		if info.IsDir() {
			files, err = filepath.Glob(filepath.Join(p, "*.rego"))
			if err != nil {
				return nil, fmt.Errorf("listing admission policies in %s: %w", p, err)
			}
		}

		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("reading admission policy %s: %w", f, err)
			}
			modules[f] = string(data)
		}
	}
	return modules, nil
}

// Evaluate returns the admission violations for doc, sorted by field and
// message.
func (a *Admission) Evaluate(ctx context.Context, doc *Document) (ValidationErrors, error) {
	input, err := documentInput(doc)
	if err != nil {
		return nil, err
	}

	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating admission rules: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	items, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("admission rules: deny must be a set, got %T", rs[0].Expressions[0].Value)
	}

	var errs ValidationErrors
	for _, item := range items {
		errs = append(errs, violationFrom(item))
	}

	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Field != errs[j].Field {
			return errs[i].Field < errs[j].Field
		}
		return errs[i].Message < errs[j].Message
	})
	return errs, nil
}

// ValidateWithAdmission runs Validate and, when a is non-nil, appends the
// admission violations.
func ValidateWithAdmission(ctx context.Context, doc *Document, a *Admission) (ValidationErrors, error) {
	errs := Validate(doc)
	if a == nil {
		return errs, nil
	}
	extra, err := a.Evaluate(ctx, doc)
	if err != nil {
		return errs, err
	}
	return append(errs, extra...), nil
}

func violationFrom(item interface{}) ConfigValidationError {
	switch v := item.(type) {
	case string:
		return ConfigValidationError{Field: "admission", Message: v}
	case map[string]interface{}:
		field, _ := v["field"].(string)
		msg, _ := v["message"].(string)
		if field == "" {
			field = "admission"
		}
		return ConfigValidationError{Field: field, Message: msg}
	default:
		raw, _ := json.Marshal(v)
		return ConfigValidationError{Field: "admission", Message: strings.TrimSpace(string(raw))}
	}
}

// documentInput converts the document into the generic JSON shape that
// Rego rules see as input.
func documentInput(doc *Document) (map[string]interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding admission input: %w", err)
	}
	var input map[string]interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decoding admission input: %w", err)
	}
	return input, nil
}

// Modules returns the names of the operator modules compiled alongside the
// built-in rules.
func (a *Admission) Modules() []string {
	return append([]string(nil), a.modules...)
}
