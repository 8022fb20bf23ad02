package contact

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionsURL = "https://llm.test/v1/chat/completions"

func newTestClient(t *testing.T) (*OpenAIClient, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	client := NewOpenAIClient(&http.Client{Transport: mt}, OpenAIConfig{
		APIKey:      "sk-test",
		BaseURL:     "https://llm.test/v1/",
		Model:       "gpt-3.5-turbo",
		Temperature: 0.3,
	}, nil)
	return client, mt
}

func answer(content string) httpmock.Responder {
	return httpmock.NewJsonResponderOrPanic(200, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"total_tokens": 42},
	})
}

func TestOpenAIClient_Infer(t *testing.T) {
	ctx := context.Background()

	t.Run("sends request and parses json answer", func(t *testing.T) {
		client, mt := newTestClient(t)

		var sent chatRequest
		mt.RegisterResponder("POST", completionsURL, func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
			body, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(body, &sent))
			return answer(`{"email":"info@clay-kobo.jp","url":"https://clay-kobo.jp"}`)(req)
		})

		c, err := client.Infer(ctx, "粘土工房です。連絡先は…")
		require.NoError(t, err)
		assert.Equal(t, Contact{Email: "info@clay-kobo.jp", URL: "https://clay-kobo.jp"}, c)

		assert.Equal(t, "gpt-3.5-turbo", sent.Model)
		assert.InDelta(t, 0.3, sent.Temperature, 1e-9)
		require.Len(t, sent.Messages, 2)
		assert.Equal(t, "粘土工房です。連絡先は…", sent.Messages[1].Content)
		assert.Equal(t, 1, mt.GetTotalCallCount())
	})

	t.Run("drops values that are not contacts", func(t *testing.T) {
		client, mt := newTestClient(t)
		mt.RegisterResponder("POST", completionsURL, answer(`{"email":"not provided","url":"see profile"}`))

		c, err := client.Infer(ctx, "text")
		require.NoError(t, err)
		assert.Equal(t, Contact{}, c)
	})

	t.Run("plain text answer is scanned", func(t *testing.T) {
		client, mt := newTestClient(t)
		mt.RegisterResponder("POST", completionsURL, answer("Email: shop@example.jp URL: https://example.jp"))

		c, err := client.Infer(ctx, "text")
		require.NoError(t, err)
		assert.Equal(t, Contact{Email: "shop@example.jp", URL: "https://example.jp"}, c)
	})

	t.Run("error statuses are classified", func(t *testing.T) {
		tests := []struct {
			status int
			target error
		}{
			{http.StatusUnauthorized, ErrAuth},
			{http.StatusTooManyRequests, ErrRateLimited},
		}
		for _, tt := range tests {
			client, mt := newTestClient(t)
			mt.RegisterResponder("POST", completionsURL, httpmock.NewStringResponder(tt.status,
				`{"error":{"message":"nope"}}`))

			_, err := client.Infer(ctx, "text")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "nope", apiErr.Message)
		}
	})

	t.Run("no choices", func(t *testing.T) {
		client, mt := newTestClient(t)
		mt.RegisterResponder("POST", completionsURL, httpmock.NewStringResponder(200, `{"choices":[]}`))

		_, err := client.Infer(ctx, "text")
		assert.ErrorIs(t, err, ErrNoChoices)
	})

	t.Run("server error", func(t *testing.T) {
		client, mt := newTestClient(t)
		mt.RegisterResponder("POST", completionsURL, httpmock.NewStringResponder(502, "bad gateway"))

		_, err := client.Infer(ctx, "text")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 502, apiErr.StatusCode)
		assert.Equal(t, "Bad Gateway", apiErr.Message)
	})
}
