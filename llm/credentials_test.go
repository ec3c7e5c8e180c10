package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker map[string]bool

func (s staticChecker) Check(token string) bool { return s[token] }

func TestCredentials_Masking(t *testing.T) {
	c := Credentials{Endpoint: "https://api.example.com", APIKey: "sk-secret", Model: "gpt-4o"}

	assert.NotContains(t, c.String(), "sk-secret")

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
	assert.Contains(t, string(data), `"apiKey":"***"`)
}

func TestCredentials_UnmarshalKeepsKey(t *testing.T) {
	var c Credentials
	require.NoError(t, json.Unmarshal([]byte(`{"apiUrl":"u","apiKey":"k","modelName":"m"}`), &c))
	assert.Equal(t, Credentials{Endpoint: "u", APIKey: "k", Model: "m"}, c)
	assert.True(t, c.Complete())
}

func TestResolver_Resolve(t *testing.T) {
	defaults := Credentials{Endpoint: "https://server", APIKey: "server-key", Model: "default-model"}
	checker := staticChecker{"letmein": true}

	tests := []struct {
		name          string
		defaults      Credentials
		explicit      *Credentials
		token         string
		selectedModel string
		want          Resolution
		wantErr       error
	}{
		{
			name:     "complete explicit config wins",
			defaults: defaults,
			explicit: &Credentials{Endpoint: " https://mine ", APIKey: "mine", Model: "m1"},
			token:    "bogus",
			want: Resolution{
				Credentials: Credentials{Endpoint: "https://mine", APIKey: "mine", Model: "m1"},
				Unlimited:   true,
				Source:      "explicit",
			},
		},
		{
			name:     "incomplete explicit config falls through to server",
			defaults: defaults,
			explicit: &Credentials{Endpoint: "https://mine"},
			want:     Resolution{Credentials: defaults, Source: "server"},
		},
		{
			name:          "valid token grants unlimited with selected model",
			defaults:      defaults,
			token:         "letmein",
			selectedModel: "picked",
			want: Resolution{
				Credentials: Credentials{Endpoint: "https://server", APIKey: "server-key", Model: "picked"},
				Unlimited:   true,
				Source:      "server",
			},
		},
		{
			name:     "invalid token is rejected",
			defaults: defaults,
			token:    "wrong",
			wantErr:  ErrInvalidAccessToken,
		},
		{
			name:     "server defaults incomplete",
			defaults: Credentials{Endpoint: "https://server"},
			wantErr:  ErrIncompleteCredentials,
		},
		{
			name:          "selected model completes server defaults",
			defaults:      Credentials{Endpoint: "https://server", APIKey: "k"},
			selectedModel: "m",
			want: Resolution{
				Credentials: Credentials{Endpoint: "https://server", APIKey: "k", Model: "m"},
				Source:      "server",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.defaults, checker)
			got, err := r.Resolve(tt.explicit, tt.token, tt.selectedModel)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_NilCheckerRejectsTokens(t *testing.T) {
	r := NewResolver(Credentials{Endpoint: "e", APIKey: "k", Model: "m"}, nil)
	_, err := r.Resolve(nil, "anything", "")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	res, err := r.Resolve(nil, "", "")
	require.NoError(t, err)
	assert.False(t, res.Unlimited)
}
