package config_test

import (
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/member-manager/internal/config"
)

func TestMakeValkeyOptions(t *testing.T) {
	missingFile := commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/file"}}

	tests := []struct {
		name        string
		conf        config.ValKey
		wantErrText string
	}{
		{
			name: "Invalid host ref",
			conf: config.ValKey{
				Host:     missingFile,
				User:     commoncfg.SourceRef{Source: "embedded", Value: "user"},
				Password: commoncfg.SourceRef{Source: "embedded", Value: "pass"},
			},
			wantErrText: "loading valkey host",
		},
		{
			name: "Invalid user ref",
			conf: config.ValKey{
				Host:     commoncfg.SourceRef{Source: "embedded", Value: "localhost:6379"},
				User:     missingFile,
				Password: commoncfg.SourceRef{Source: "embedded", Value: "pass"},
			},
			wantErrText: "loading valkey username",
		},
		{
			name: "Invalid password ref",
			conf: config.ValKey{
				Host:     commoncfg.SourceRef{Source: "embedded", Value: "localhost:6379"},
				User:     commoncfg.SourceRef{Source: "embedded", Value: "user"},
				Password: missingFile,
			},
			wantErrText: "loading valkey password",
		},
		{
			name: "Invalid mTLS files",
			conf: config.ValKey{
				Host:     commoncfg.SourceRef{Source: "embedded", Value: "localhost:6379"},
				User:     commoncfg.SourceRef{Source: "embedded", Value: "user"},
				Password: commoncfg.SourceRef{Source: "embedded", Value: "pass"},
				SecretRef: commoncfg.SecretRef{
					Type: commoncfg.MTLSSecretType,
					MTLS: commoncfg.MTLS{
						Cert:    commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/cert.pem"}},
						CertKey: commoncfg.SourceRef{Source: "file", File: commoncfg.CredentialFile{Path: "/nonexistent/key.pem"}},
					},
				},
			},
			wantErrText: "loading valkey mTLS config from secret ref",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.MakeValkeyOptions(tt.conf)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErrText)
		})
	}
}

func TestMakeValkeyOptions_Success(t *testing.T) {
	opts, err := config.MakeValkeyOptions(config.ValKey{
		Host:     commoncfg.SourceRef{Source: "embedded", Value: "localhost:6379"},
		User:     commoncfg.SourceRef{Source: "embedded", Value: "user"},
		Password: commoncfg.SourceRef{Source: "embedded", Value: "pass"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:6379"}, opts.InitAddress)
	assert.Equal(t, "user", opts.Username)
	assert.Equal(t, "pass", opts.Password)
	assert.Nil(t, opts.TLSConfig)
}
