package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/meshbed/testbed-manager/internal/client"
	"github.com/meshbed/testbed-manager/internal/config"
	"github.com/meshbed/testbed-manager/internal/service"
	"github.com/meshbed/testbed-manager/internal/tokens"
)

type GlobalOptions struct {
	CredmgrHost      string
	OrchestratorHost string
	TokenFile        string
	ProjectID        string
	ProjectName      string
	Scope            string
}

// DefaultGlobalOptions seeds the flag defaults from the environment
// configuration, so TESTBED_MANAGER_* variables apply to the CLI too.
func DefaultGlobalOptions() GlobalOptions {
	opts := GlobalOptions{
		CredmgrHost:      "cm.meshbed.net",
		OrchestratorHost: "orchestrator.meshbed.net",
		Scope:            client.DefaultTokenScope,
	}
	if cfg, err := config.New(); err == nil {
		opts.CredmgrHost = cfg.Credmgr.Host
		opts.OrchestratorHost = cfg.Orchestrator.Host
		opts.TokenFile = cfg.Tokens.Path
		opts.ProjectID = cfg.Tokens.ProjectID
		opts.ProjectName = cfg.Tokens.ProjectName
		opts.Scope = cfg.Tokens.Scope
	}
	return opts
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.CredmgrHost, "credmgr-host", o.CredmgrHost, "Host of the credential manager")
	fs.StringVar(&o.OrchestratorHost, "orchestrator-host", o.OrchestratorHost, "Host of the orchestrator")
	fs.StringVar(&o.TokenFile, "token-file", o.TokenFile, "Path of the token file")
	fs.StringVar(&o.ProjectID, "project-id", o.ProjectID, "Project id the tokens are scoped to")
	fs.StringVar(&o.ProjectName, "project-name", o.ProjectName, "Project name the tokens are scoped to")
	fs.StringVar(&o.Scope, "scope", o.Scope, "Token scope")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

func (o *GlobalOptions) Credmgr() *client.Credmgr {
	return client.NewCredmgr(o.CredmgrHost)
}

func (o *GlobalOptions) Orchestrator() *client.Orchestrator {
	return client.NewOrchestrator(o.OrchestratorHost)
}

func (o *GlobalOptions) TokenManager() (*tokens.Manager, error) {
	return tokens.NewManager(o.Credmgr(), tokens.Config{
		Path:        o.TokenFile,
		ProjectID:   o.ProjectID,
		ProjectName: o.ProjectName,
		Scope:       o.Scope,
	})
}

func (o *GlobalOptions) TopologyService() (*service.TopologyService, error) {
	manager, err := o.TokenManager()
	if err != nil {
		return nil, err
	}
	return service.NewTopologyService(o.Orchestrator(), manager), nil
}

// identityToken returns a valid identity token, refreshing the stored
// pair when it is near expiry.
func (o *GlobalOptions) identityToken(ctx context.Context) (string, error) {
	manager, err := o.TokenManager()
	if err != nil {
		return "", fmt.Errorf("creating token manager: %w", err)
	}
	token, err := manager.EnsureValidToken(ctx)
	if err != nil {
		return "", fmt.Errorf("obtaining identity token: %w", err)
	}
	return token, nil
}
