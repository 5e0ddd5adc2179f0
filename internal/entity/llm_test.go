package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/pkg/anthropic"
	"github.com/sells-group/profile-finder/pkg/anthropic/mocks"
)

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

func TestLLM_Extract(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == anthropic.DefaultModel &&
			len(req.Messages) == 1 &&
			req.Messages[0].Content == "Alice Smith. Greater Boston Area"
	})).Return(textResponse("```json\n{\"locations\":[\"Greater Boston Area\",\"Greater Boston Area\"],\"organizations\":[],\"persons\":[\"Alice Smith\"]}\n```"), nil)

	ents, err := NewLLM(client, "", nil).Extract(context.Background(), "Alice Smith. Greater Boston Area")
	require.NoError(t, err)
	assert.Equal(t, []string{"Greater Boston Area"}, ents.Locations)
	assert.Equal(t, []string{"Alice Smith"}, ents.Persons)
	assert.Empty(t, ents.Organizations)
}

func TestLLM_ReportsUsage(t *testing.T) {
	t.Parallel()

	resp := textResponse(`{"locations":[],"organizations":[],"persons":[]}`)
	resp.Usage = anthropic.TokenUsage{InputTokens: 120, OutputTokens: 15}

	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(resp, nil)

	var gotModel string
	var got anthropic.TokenUsage
	l := NewLLM(client, "claude-test", nil).OnUsage(func(model string, u anthropic.TokenUsage) {
		gotModel, got = model, u
	})

	_, err := l.Extract(context.Background(), "Nurse in Denver")
	require.NoError(t, err)
	assert.Equal(t, "claude-test", gotModel)
	assert.Equal(t, int64(120), got.InputTokens)
	assert.Equal(t, int64(15), got.OutputTokens)
}

func TestLLM_FallsBackOnError(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("overloaded"))

	ents, err := NewLLM(client, "", nil).Extract(context.Background(), "Engineer in Chicago, IL")
	require.NoError(t, err)
	assert.Equal(t, "Chicago, IL", ents.FirstLocation())
}

func TestLLM_FallsBackOnBadJSON(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I could not find any entities."), nil)

	ents, err := NewLLM(client, "", nil).Extract(context.Background(), "Teacher in Miami")
	require.NoError(t, err)
	assert.Equal(t, "Miami", ents.FirstLocation())
}

func TestLLM_EmptyTextSkipsCall(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(t)
	ents, err := NewLLM(client, "", nil).Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, model.LocationUnknown, ents.FirstLocation())
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`Here you go: {"a":1} done`, `{"a":1}`},
		{"no json", "no json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanJSON(tt.in))
	}
}
