package config

import (
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"
)

// MakeValkeyOptions resolves the source references of the Valkey section.
func MakeValkeyOptions(conf ValKey) (valkey.ClientOption, error) {
	host, err := commoncfg.LoadValueFromSourceRef(conf.Host)
	if err != nil {
		return valkey.ClientOption{}, fmt.Errorf("loading valkey host: %w", err)
	}

	user, err := commoncfg.LoadValueFromSourceRef(conf.User)
	if err != nil {
		return valkey.ClientOption{}, fmt.Errorf("loading valkey username: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(conf.Password)
	if err != nil {
		return valkey.ClientOption{}, fmt.Errorf("loading valkey password: %w", err)
	}

	opts := valkey.ClientOption{
		InitAddress: []string{string(host)},
		Username:    string(user),
		Password:    string(password),
	}

	if conf.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&conf.SecretRef.MTLS)
		if err != nil {
			return valkey.ClientOption{}, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		opts.TLSConfig = tlsConfig
	}

	return opts, nil
}
