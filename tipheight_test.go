package psbtfaker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func tipServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.WriteHeader(status)
			_, _ = fmt.Fprint(w, body)
		},
	))
	t.Cleanup(server.Close)

	return server
}

func TestFetchTipHeight(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		height uint32
		err    bool
	}{
		{
			name:   "height",
			status: http.StatusOK,
			body:   "812345\n",
			height: 812345,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   "812345",
			err:    true,
		},
		{
			name:   "not a number",
			status: http.StatusOK,
			body:   "<html>",
			err:    true,
		},
		{
			name:   "negative",
			status: http.StatusOK,
			body:   "-1",
			err:    true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase

		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := tipServer(t, testCase.status, testCase.body)

			height, err := FetchTipHeight(
				context.Background(), server.Client(), server.URL,
			)
			if testCase.err {
				require.ErrorIs(t, err, ErrTipFetch)
				return
			}

			require.NoError(t, err)
			require.Equal(t, testCase.height, height)
		})
	}
}

func TestFetchTipHeightUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := FetchTipHeight(context.Background(), nil, url)
	require.ErrorIs(t, err, ErrTipFetch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	live := tipServer(t, http.StatusOK, "1")
	_, err = FetchTipHeight(ctx, live.Client(), live.URL)
	require.ErrorIs(t, err, ErrTipFetch)
}

func TestResolveLockTime(t *testing.T) {
	t.Parallel()

	cfg := testConfig(nil)
	cfg.lockTime = 77
	require.EqualValues(t, 77, resolveLockTime(
		context.Background(), &cfg, nil,
	))

	server := tipServer(t, http.StatusOK, "840000")
	cfg.fetchTip = true
	cfg.TipURL = server.URL
	require.EqualValues(t, 840000, resolveLockTime(
		context.Background(), &cfg, server.Client(),
	))

	// A failed fetch falls back to 0.
	broken := tipServer(t, http.StatusServiceUnavailable, "")
	cfg.TipURL = broken.URL
	require.Zero(t, resolveLockTime(
		context.Background(), &cfg, broken.Client(),
	))
}
