package config

import (
	"github.com/agentcell/agentcell/internal/policy"
	"github.com/agentcell/agentcell/internal/sandbox"
	"github.com/agentcell/agentcell/internal/supervisor"
)

// PolicyInput maps the option tree onto the composer input.
func (c *Config) PolicyInput() policy.Input {
	return policy.Input{
		Provider:       c.Provider,
		Model:          c.Model,
		CredentialFile: c.Credentials.APIKeyFile,
		Gateway: policy.Gateway{
			Port:            c.Gateway.Port,
			Host:            c.Gateway.Host,
			RequirePairing:  c.Gateway.RequirePairing,
			AllowPublicBind: c.Gateway.AllowPublicBind,
		},
		CLI: c.Channels.CLI,
		Telegram: policy.TelegramInput{
			Enable:       c.Channels.Telegram.Enable,
			BotTokenFile: c.Channels.Telegram.BotTokenFile,
			AllowedUsers: c.Channels.Telegram.AllowedUsers,
			MentionOnly:  c.Channels.Telegram.MentionOnly,
		},
		Autonomy: policy.AutonomyInput{
			Level:                 c.Autonomy.Level,
			WorkspaceOnly:         c.Autonomy.WorkspaceOnly,
			BlockHighRiskCommands: c.Autonomy.BlockHighRiskCommands,
			MaxActionsPerHour:     c.Autonomy.MaxActionsPerHour,
			MaxCostPerDayCents:    c.Autonomy.MaxCostPerDayCents,
		},
		Lists: policy.ListSpec{
			Commands:       c.Autonomy.ExtraAllowedCommands,
			ToolPackages:   c.Tools.ExtraPackages,
			ForbiddenPaths: c.Autonomy.ExtraForbiddenPaths,
		},
	}
}

// BuildDocument composes the policy document from the built-in defaults
// and this configuration.
func (c *Config) BuildDocument() (*policy.Document, error) {
	return policy.Build(policy.DefaultLists(), c.PolicyInput())
}

// HostLimits returns the declared resource ceilings.
func (c *Config) HostLimits() sandbox.HostLimits {
	return sandbox.HostLimits{
		MemoryMax: c.Resources.MemoryMax,
		CPUQuota:  c.Resources.CPUQuota,
		TasksMax:  c.Resources.TasksMax,
	}
}

// ServiceSpec returns the per-service input to sandbox.Derive.
func (c *Config) ServiceSpec() sandbox.ServiceSpec {
	return sandbox.ServiceSpec{
		Name:       c.Service.Name,
		User:       c.Service.User,
		Group:      c.Service.Group,
		StateDir:   c.Service.StateDir,
		RuntimeDir: c.Service.RuntimeDir,
		Landlock:   c.Sandbox.Landlock,
	}
}

// ServiceInstance returns the supervised instance for the given identity.
func (c *Config) ServiceInstance(id supervisor.Identity) supervisor.ServiceInstance {
	return supervisor.ServiceInstance{
		Name:       c.Service.Name,
		Identity:   id,
		StateDir:   c.Service.StateDir,
		RuntimeDir: c.Service.RuntimeDir,
		Restart: supervisor.RestartPolicy{
			Mode:               supervisor.RestartMode(c.Restart.Mode),
			Delay:              c.Restart.Delay,
			CrashLoopThreshold: uint32(max(c.Restart.CrashLoopThreshold, 0)),
			CrashLoopWindow:    c.Restart.CrashLoopWindow,
		},
	}
}

// Agent returns the executable description for the supervisor.
func (c *Config) Agent() supervisor.Agent {
	return supervisor.Agent{
		Binary:       c.Service.Binary,
		Args:         append([]string(nil), c.Service.Args...),
		WorkspaceEnv: c.Service.WorkspaceEnv,
		ConfigEnv:    c.Service.ConfigEnv,
	}
}
