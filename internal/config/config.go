package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Service      *svcConfig
	Credmgr      *credmgrConfig
	Orchestrator *orchestratorConfig
	Tokens       *tokensConfig
}

type svcConfig struct {
	Address        string `envconfig:"TESTBED_MANAGER_ADDRESS" default:":3443"`
	MetricsAddress string `envconfig:"TESTBED_MANAGER_METRICS_ADDRESS" default:":8080"`
	LogLevel       string `envconfig:"TESTBED_MANAGER_LOG_LEVEL" default:"info"`
}

type credmgrConfig struct {
	Host string `envconfig:"TESTBED_MANAGER_CREDMGR_HOST" default:"cm.meshbed.net"`
}

type orchestratorConfig struct {
	Host string `envconfig:"TESTBED_MANAGER_ORCHESTRATOR_HOST" default:"orchestrator.meshbed.net"`
}

type tokensConfig struct {
	Path         string `envconfig:"TESTBED_MANAGER_TOKEN_FILE" default:""`
	IDToken      string `envconfig:"TESTBED_MANAGER_ID_TOKEN" default:""`
	RefreshToken string `envconfig:"TESTBED_MANAGER_REFRESH_TOKEN" default:""`
	ProjectID    string `envconfig:"TESTBED_MANAGER_PROJECT_ID" default:""`
	ProjectName  string `envconfig:"TESTBED_MANAGER_PROJECT_NAME" default:""`
	Scope        string `envconfig:"TESTBED_MANAGER_TOKEN_SCOPE" default:"all"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}
