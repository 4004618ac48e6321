package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/agentcell/agentcell/internal/config"
	"github.com/agentcell/agentcell/internal/policy"
)

// errInvalid is returned after the violations have already been printed.
var errInvalid = errors.New("validation failed")

// checkConfig runs the ambient config checks and prints every issue.
func checkConfig(cfg *config.Config, w io.Writer) error {
	result := config.Validate(cfg)
	if result.HasErrors() || result.HasWarnings() {
		fmt.Fprintln(w, result.String())
	}
	if result.HasErrors() {
		return errInvalid
	}
	return nil
}

// composePolicy builds the policy document and runs the fixed assertions
// and admission rules. Every violation is printed before it returns.
func composePolicy(ctx context.Context, cfg *config.Config, w io.Writer) (*policy.Document, policy.ValidationErrors, error) {
	doc, err := cfg.BuildDocument()
	if err != nil {
		return nil, nil, fmt.Errorf("composing policy: %w", err)
	}

	modules, err := policy.LoadAdmissionModules(cfg.Sandbox.AdmissionPolicies)
	if err != nil {
		return nil, nil, err
	}
	adm, err := policy.NewAdmission(ctx, modules)
	if err != nil {
		return nil, nil, err
	}

	errs, err := policy.ValidateWithAdmission(ctx, doc, adm)
	if err != nil {
		return nil, nil, err
	}
	if len(errs) > 0 {
		fmt.Fprintf(w, "Policy has %d violation(s):\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(w, "  - %s: %s\n", e.Field, e.Message)
		}
		return doc, errs, errInvalid
	}
	return doc, nil, nil
}
