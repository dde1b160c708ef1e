package rewrite

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPClient_Unconfigured(t *testing.T) {
	c := NewHTTPClient(Config{}, testLogger())

	_, err := c.Submit(context.Background(), Request{Question: "q"})
	require.ErrorIs(t, err, ErrUnconfigured)

	_, err = c.Poll(context.Background(), "h1")
	require.ErrorIs(t, err, ErrUnconfigured)
}

func TestHTTPClient_SubmitAndPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/rewrites":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, float64(5), body["count"])
			json.NewEncoder(w).Encode(map[string]string{"job_id": "job-7"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/rewrites/job-7":
			json.NewEncoder(w).Encode(Result{
				Status: JobDone,
				Variants: []Variant{
					{Question: "v1", Answer: "a1"},
					{Question: "v2", Answer: "a2"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, APIKey: "key", Timeout: time.Second}, testLogger())

	handle, err := c.Submit(context.Background(), Request{Question: "原题", Answer: "答案", PromptVersion: 3})
	require.NoError(t, err)
	require.Equal(t, "job-7", handle)

	res, err := c.Poll(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, JobDone, res.Status)
	require.Len(t, res.Variants, 2)
}

func TestHTTPClient_PollRejectsInvalidPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// status outside the enum
		io.WriteString(w, `{"status": "exploded"}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, APIKey: "key"}, testLogger())
	_, err := c.Poll(context.Background(), "h")
	require.Error(t, err)
}

func TestValidateResultPayload(t *testing.T) {
	require.NoError(t, ValidateResultPayload([]byte(`{"status":"pending"}`)))
	require.NoError(t, ValidateResultPayload([]byte(`{"status":"done","variants":[{"question":"q","answer":"a"}]}`)))

	// variant without question
	require.Error(t, ValidateResultPayload([]byte(`{"status":"done","variants":[{"answer":"a"}]}`)))
	// too many variants
	require.Error(t, ValidateResultPayload([]byte(`{"status":"done","variants":[
		{"question":"1"},{"question":"2"},{"question":"3"},
		{"question":"4"},{"question":"5"},{"question":"6"}]}`)))
	// missing status
	require.Error(t, ValidateResultPayload([]byte(`{}`)))
}
