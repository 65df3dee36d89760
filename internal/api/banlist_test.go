package api

import (
	"context"
	"net"
	"testing"
	"time"

	"raidbot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *BanListClient {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown()
		ln.Close()
	})

	return &BanListClient{
		url: "http://banlist.test/bans.json",
		client: &fasthttp.Client{
			Dial: func(addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}
}

func TestFetchDecodesEntries(t *testing.T) {
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`[
			{"Name":"Brock","Language":"English","Notes":"leech","Enabled":true,"Log10p":-2.5},
			{"name":"Misty","language":"French","notes":"","enabled":false,"log10p":-3}
		]`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := client.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.BanEntry{
		{Name: "Brock", Language: "English", Notes: "leech", Enabled: true, Log10p: -2.5},
		{Name: "Misty", Language: "French", Enabled: false, Log10p: -3},
	}, entries)
}

func TestFetchNonOK(t *testing.T) {
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	})

	_, err := client.Fetch(context.Background())
	assert.ErrorContains(t, err, "503")
}

func TestFetchWithoutURL(t *testing.T) {
	client := &BanListClient{client: &fasthttp.Client{}}

	_, err := client.Fetch(context.Background())
	assert.Error(t, err)
}
