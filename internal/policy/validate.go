package policy

import (
	"fmt"
	"strings"
)

// ConfigValidationError describes a single invariant violation.
type ConfigValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is the full list of violations found in one pass.
type ValidationErrors []ConfigValidationError

// Err returns nil when the list is empty, otherwise an error naming every
// violation.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v ValidationErrors) Error() string {
	lines := make([]string, len(v))
	for i, e := range v {
		lines[i] = e.Error()
	}
	return fmt.Sprintf("policy validation failed:\n  - %s", strings.Join(lines, "\n  - "))
}

// Has reports whether any violation names the given field.
func (v ValidationErrors) Has(field string) bool {
	for _, e := range v {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Validate runs every document assertion independently and returns all
// violations. Callers must refuse to deploy or start the service when the
// result is non-empty.
func Validate(doc *Document) ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, validateCredential(doc)...)
	errs = append(errs, validateTelegram(doc.Channels.Telegram)...)
	errs = append(errs, validateRates(&doc.Autonomy)...)
	errs = append(errs, validateGateway(&doc.Gateway)...)
	errs = append(errs, validateIdentity(doc)...)

	return errs
}

func validateCredential(doc *Document) ValidationErrors {
	if doc.CredentialSource == "" {
		return ValidationErrors{{
			Field:   "credentials.api_key_file",
			Message: "primary provider credential source is not declared",
		}}
	}
	return nil
}

func validateTelegram(tg *TelegramChannel) ValidationErrors {
	if tg == nil {
		return nil
	}

	var errs ValidationErrors
	if tg.TokenSource == "" {
		errs = append(errs, ConfigValidationError{
			Field:   "channels.telegram.bot_token_file",
			Message: "is required when the telegram channel is enabled",
		})
	}
	if len(tg.AllowedUsers) == 0 {
		errs = append(errs, ConfigValidationError{
			Field:   "channels.telegram.allowed_users",
			Message: "must list at least one user when the telegram channel is enabled",
		})
	}
	return errs
}

func validateRates(a *Autonomy) ValidationErrors {
	var errs ValidationErrors
	if a.MaxActionsPerHour < 0 {
		errs = append(errs, ConfigValidationError{
			Field:   "autonomy.max_actions_per_hour",
			Message: fmt.Sprintf("must be non-negative, got %d", a.MaxActionsPerHour),
		})
	}
	if a.MaxCostPerDayCents < 0 {
		errs = append(errs, ConfigValidationError{
			Field:   "autonomy.max_cost_per_day_cents",
			Message: fmt.Sprintf("must be non-negative, got %d", a.MaxCostPerDayCents),
		})
	}
	if !validLevels[a.Level] {
		errs = append(errs, ConfigValidationError{
			Field:   "autonomy.level",
			Message: fmt.Sprintf("must be %q, %q, or %q, got %q", LevelReadOnly, LevelSupervised, LevelFull, a.Level),
		})
	}
	return errs
}

func validateGateway(g *Gateway) ValidationErrors {
	var errs ValidationErrors
	if g.Port < 1 || g.Port > 65535 {
		errs = append(errs, ConfigValidationError{
			Field:   "gateway.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", g.Port),
		})
	}
	if strings.TrimSpace(g.Host) == "" {
		errs = append(errs, ConfigValidationError{
			Field:   "gateway.host",
			Message: "must not be empty",
		})
	}
	return errs
}

func validateIdentity(doc *Document) ValidationErrors {
	var errs ValidationErrors
	if doc.Provider == "" {
		errs = append(errs, ConfigValidationError{Field: "provider", Message: "must not be empty"})
	}
	if doc.Model == "" {
		errs = append(errs, ConfigValidationError{Field: "model", Message: "must not be empty"})
	}
	return errs
}
