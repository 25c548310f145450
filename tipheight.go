package psbtfaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	tipFetchTimeout = 10 * time.Second

	// maxTipBody bounds how much of the reply we read. A height is a
	// handful of digits.
	maxTipBody = 64
)

// ErrTipFetch is returned when the chain tip height can't be fetched.
var ErrTipFetch = errors.New("unable to fetch chain tip height")

// FetchTipHeight asks url for the current block height. A nil client uses a
// fresh cleanhttp client.
func FetchTipHeight(ctx context.Context, client *http.Client,
	url string) (uint32, error) {

	if client == nil {
		client = cleanhttp.DefaultClient()
	}

	ctx, cancel := context.WithTimeout(ctx, tipFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTipFetch, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTipFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %s", ErrTipFetch, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTipBody))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTipFetch, err)
	}

	height, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTipFetch, err)
	}

	return uint32(height), nil
}

// resolveLockTime returns the configured locktime, fetching the tip height if
// asked to. A failed fetch is not fatal: we warn and use 0.
func resolveLockTime(ctx context.Context, cfg *Config,
	client *http.Client) uint32 {

	if !cfg.fetchTip {
		return cfg.lockTime
	}

	height, err := FetchTipHeight(ctx, client, cfg.TipURL)
	if err != nil {
		fakerLog.Warnw("Using locktime 0", "err", err)
		return 0
	}

	fakerLog.Debugw("Fetched chain tip", "height", height)

	return height
}
