package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/irrigation-advisor/internal/circuitbreaker"
	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

const (
	DefaultNewsURL = "https://newsapi.org/v2"

	newsProvider = "newsapi"
	newsPageSize = 40
)

// NewsClient fetches agriculture news for a location.
type NewsClient interface {
	Articles(ctx context.Context, city string) ([]models.Article, error)
}

// NewsAPIConfig configures NewsAPIClient. An empty BaseURL uses the public endpoint.
type NewsAPIConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
	Breaker    *circuitbreaker.Config
}

// NewsAPIClient queries the NewsAPI /everything endpoint.
type NewsAPIClient struct {
	apiKey  string
	baseURL *url.URL
	caller  *apiCaller
}

func NewNewsAPIClient(cfg NewsAPIConfig) (*NewsAPIClient, error) {
	base, err := parseBaseURL(cfg.BaseURL, DefaultNewsURL)
	if err != nil {
		return nil, fmt.Errorf("news api url: %w", err)
	}
	caller := newAPICaller(newsProvider, cfg.HTTPClient, cfg.Timeout, cfg.Retry)
	if cfg.Breaker != nil {
		caller.breaker = newBreaker(newsProvider, *cfg.Breaker)
	}
	return &NewsAPIClient{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: base,
		caller:  caller,
	}, nil
}

// NewsQuery builds the provider search expression for a city.
func NewsQuery(city string) string {
	return fmt.Sprintf("agriculture OR farming OR crops AND (%s OR India)", city)
}

// Articles returns the valid articles (title, image and link present) for city, newest first.
func (c *NewsAPIClient) Articles(ctx context.Context, city string) ([]models.Article, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: %w: API key is not configured", newsProvider, ErrInvalidAPIKey)
	}
	params := url.Values{}
	params.Set("q", NewsQuery(city))
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(newsPageSize))
	params.Set("apiKey", c.apiKey)
	u := c.baseURL.JoinPath("everything")
	u.RawQuery = params.Encode()

	var resp newsAPIResponse
	if err := c.caller.getJSON(ctx, "everything", u, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("%s: %w: %s", newsProvider, ErrUpstreamFailure, resp.Code)
	}
	return mapArticles(resp), nil
}
