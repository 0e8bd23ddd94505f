// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	Process Process `yaml:"process"`
	Wallet  Wallet  `yaml:"wallet"`
	ValKey  ValKey  `yaml:"valkey"`
	Action  Action  `yaml:"action"`
	Watch   Watch   `yaml:"watch"`
}

// Process addresses the remote process holding the member set.
type Process struct {
	ID     string   `yaml:"id"`
	Scopes []string `yaml:"scopes"`
}

type Wallet struct {
	// Keyfile references the RSA JWK the address is derived from.
	Keyfile       commoncfg.SourceRef `yaml:"keyfile"`
	AllowedScopes []string            `yaml:"allowedScopes"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
	Prefix    string              `yaml:"prefix" default:"member-manager"`

	PollInterval time.Duration `yaml:"pollInterval" default:"5s"`
	ResultTTL    time.Duration `yaml:"resultTTL" default:"10m"`
}

type Action struct {
	ResultTimeout        time.Duration `yaml:"resultTimeout" default:"30s"`
	SerializePerIdentity bool          `yaml:"serializePerIdentity"`
}

type Watch struct {
	RefreshInterval time.Duration `yaml:"refreshInterval" default:"1m"`
}
