package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/starford/ansuz/internal/apperr"
)

// fakeModel returns a canned reply or error for every call.
type fakeModel struct {
	reply string
	err   error
	calls int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.reply}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, apperr.IsValidation(err))
}

func TestCompleteJSONDecodes(t *testing.T) {
	c := NewWithModel(&fakeModel{reply: `{"queries":["a","b"],"keywords":["k"]}`})

	var out struct {
		Queries  []string `json:"queries"`
		Keywords []string `json:"keywords"`
	}
	require.NoError(t, c.CompleteJSON(context.Background(), "sys", "user", &out))
	assert.Equal(t, []string{"a", "b"}, out.Queries)
	assert.Equal(t, []string{"k"}, out.Keywords)
}

func TestCompleteJSONStripsCodeFence(t *testing.T) {
	c := NewWithModel(&fakeModel{reply: "```json\n{\"queries\":[\"a\"]}\n```"})

	var out struct {
		Queries []string `json:"queries"`
	}
	require.NoError(t, c.CompleteJSON(context.Background(), "sys", "user", &out))
	assert.Equal(t, []string{"a"}, out.Queries)
}

func TestCompleteJSONMalformedIsBadRequest(t *testing.T) {
	c := NewWithModel(&fakeModel{reply: "Sure! Here are some queries for you."})

	var out struct{}
	err := c.CompleteJSON(context.Background(), "sys", "user", &out)
	ue, ok := apperr.AsUpstream(err)
	require.True(t, ok, "expected upstream error, got %v", err)
	assert.Equal(t, apperr.UpstreamBadRequest, ue.Kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind apperr.UpstreamKind
	}{
		{"auth", errors.New("API returned unexpected status code: 401 Incorrect API key provided"), apperr.UpstreamAuth},
		{"rate limit", errors.New("API returned unexpected status code: 429 Rate limit reached"), apperr.UpstreamRateLimit},
		{"network", errors.New(`Post "https://api.example.com": dial tcp: no such host`), apperr.UpstreamNetwork},
		{"other", errors.New("something odd happened"), apperr.UpstreamUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewWithModel(&fakeModel{err: tt.err})
			_, err := c.Complete(context.Background(), "sys", "user")
			ue, ok := apperr.AsUpstream(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, ue.Kind)
		})
	}
}
