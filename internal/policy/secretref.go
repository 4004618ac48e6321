package policy

import "strings"

// Secret names used to derive placeholder tokens.
const (
	SecretAPIKey           = "api_key"
	SecretTelegramBotToken = "telegram_bot_token"
)

// PlaceholderPrefix and PlaceholderSuffix delimit every placeholder token.
// Any occurrence of the prefix in a materialized configuration means a
// secret was left unresolved.
const (
	PlaceholderPrefix = "__AGENTCELL_SECRET_"
	PlaceholderSuffix = "__"
)

// Placeholder returns the reserved marker that stands in for the named
// secret in rendered artifacts.
func Placeholder(name string) string {
	return PlaceholderPrefix + strings.ToUpper(name) + PlaceholderSuffix
}

// SecretRef maps an external secret file to where it is consumed: either
// substituted for Placeholder in the runtime configuration or exported as
// TargetEnvVar. Exactly one of the two is set.
type SecretRef struct {
	Name         string `json:"name"`
	SourcePath   string `json:"source_path"`
	Placeholder  string `json:"placeholder,omitempty"`
	TargetEnvVar string `json:"target_env_var,omitempty"`
}

// IsEnv reports whether the secret is exported through the environment.
func (r SecretRef) IsEnv() bool {
	return r.TargetEnvVar != ""
}

// SecretRefs lists the secrets the document consumes. The primary
// credential is exported as apiKeyEnv; the Telegram bot token is
// substituted into the configuration.
func (d *Document) SecretRefs(apiKeyEnv string) []SecretRef {
	var refs []SecretRef

	if d.CredentialSource != "" {
		refs = append(refs, SecretRef{
			Name:         SecretAPIKey,
			SourcePath:   d.CredentialSource,
			TargetEnvVar: apiKeyEnv,
		})
	}

	if tg := d.Channels.Telegram; tg != nil && tg.TokenSource != "" {
		refs = append(refs, SecretRef{
			Name:        SecretTelegramBotToken,
			SourcePath:  tg.TokenSource,
			Placeholder: tg.BotTokenPlaceholder,
		})
	}

	return refs
}
