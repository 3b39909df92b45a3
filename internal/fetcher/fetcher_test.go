package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokscrape/tiktok-shop-scraper/internal/browser"
)

type failingPool struct {
	acquires int
	recycles int
}

func (p *failingPool) Acquire() (*browser.Browser, error) {
	p.acquires++
	return nil, errors.New("browser exploded")
}

func (p *failingPool) Recycle() {
	p.recycles++
}

func newTestFetcher(pool SessionPool) *Fetcher {
	f := New(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.RetryDelay = 0
	f.SettleDelay = 0
	return f
}

func TestFetchExhaustsAttemptsAndRecycles(t *testing.T) {
	pool := &failingPool{}
	f := newTestFetcher(pool)

	res, err := f.Fetch(context.Background(), "https://www.tiktok.com/@someone/video/1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed), "exhaustion must wrap ErrFetchFailed")
	assert.Nil(t, res)
	assert.Equal(t, 3, pool.acquires, "every attempt acquires a fresh session")
	assert.Equal(t, 3, pool.recycles, "every failed attempt recycles the session")
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	pool := &failingPool{}
	f := newTestFetcher(pool)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "https://www.tiktok.com/@someone/video/1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, pool.acquires, "no attempt should start on a dead context")
}
