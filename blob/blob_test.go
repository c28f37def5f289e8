package blob

import (
	"strings"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_TokenResolution(t *testing.T) {
	tests := []struct {
		name    string
		params  ClientParams
		envVars map[string]string
		wantErr error
	}{
		{
			name:   "token from params",
			params: ClientParams{Token: "blobvault_rw_fra1_store1_secret"},
		},
		{
			name:    "token from environment",
			envVars: map[string]string{TokenEnvKey: "blobvault_rw_fra1_store1_secret"},
		},
		{
			name:    "no token anywhere",
			wantErr: ErrNoToken,
		},
		{
			name:    "params take precedence over environment",
			params:  ClientParams{Token: "blobvault_rw_fra1_paramstore_secret"},
			envVars: map[string]string{TokenEnvKey: "blobvault_rw_fra1_envstore_secret"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.params, fakeEnvRepo{envVars: tt.envVars}, log.NewLogger())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestNewClient_RetriesFromEnvironment(t *testing.T) {
	envRepo := fakeEnvRepo{envVars: map[string]string{
		TokenEnvKey:   "blobvault_rw_fra1_store1_secret",
		RetriesEnvKey: "3",
	}}
	client, err := NewClient(ClientParams{}, envRepo, log.NewLogger())
	require.NoError(t, err)
	assert.NotNil(t, client)

	// an invalid override falls back to the default silently
	envRepo.envVars[RetriesEnvKey] = "lots"
	client, err = NewClient(ClientParams{}, envRepo, log.NewLogger())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func Test_validatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{
			name: "simple path",
			path: "folder/file.txt",
		},
		{
			name: "path at the length limit",
			path: strings.Repeat("a", 950),
		},
		{
			name:    "path over the length limit",
			path:    strings.Repeat("a", 951),
			wantErr: true,
		},
		{
			name:    "empty path",
			path:    "",
			wantErr: true,
		},
		{
			name:    "double slash",
			path:    "folder//file.txt",
			wantErr: true,
		},
		{
			name: "encoded double slash is fine",
			path: "folder/%2F/file.txt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func Test_isURL(t *testing.T) {
	assert.True(t, isURL("https://store.example.com/file.bin"))
	assert.True(t, isURL("http://localhost:8080/file.bin"))
	assert.False(t, isURL("folder/file.bin"))
	assert.False(t, isURL(""))
}
