package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"raidbot/internal/config"
	"raidbot/internal/constants"
	"raidbot/internal/domain"

	"github.com/valyala/fasthttp"
)

type BanListClient struct {
	url    string
	client *fasthttp.Client
}

func NewBanListClient(cfg *config.Config) *BanListClient {
	return &BanListClient{
		url: cfg.Settings.BanListURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     4,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

// Fetch downloads the full remote ban list, disabled entries included.
func (c *BanListClient) Fetch(ctx context.Context) ([]domain.BanEntry, error) {
	if c.url == "" {
		return nil, fmt.Errorf("ban list url is not configured")
	}
	entries, err := doRequest[[]domain.BanEntry](ctx, c.client, c.url)
	if err != nil {
		return nil, err
	}
	return *entries, nil
}

func doRequest[T any](ctx context.Context, client *fasthttp.Client, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("ban list error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("decoding ban list: %w", err)
	}
	return &result, nil
}
