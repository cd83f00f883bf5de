// Package search provides web search grounding for emission estimates.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	endpoint = "https://www.googleapis.com/customsearch/v1"

	// maxSnippets bounds how many result snippets feed the estimator.
	maxSnippets = 5
)

// Client queries the Google Custom Search JSON API.
type Client struct {
	apiKey     string
	cseID      string
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a search client. An empty API key or CSE ID yields a
// client whose queries return no snippets.
func NewClient(apiKey, cseID string) *Client {
	return &Client{
		apiKey:     apiKey,
		cseID:      cseID,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Snippets runs a search and returns the top result snippets joined by
// newlines. Failures degrade to an empty string; grounding is best-effort
// and must never fail an estimate.
func (c *Client) Snippets(ctx context.Context, query string) string {
	if c.apiKey == "" || c.cseID == "" {
		return ""
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("key", c.apiKey)
	params.Set("cx", c.cseID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		log.Debug().Err(err).Msg("Search request build failed")
		return ""
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Search request failed")
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Debug().Err(err).Msg("Search response read failed")
		return ""
	}
	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Msg("Search returned non-OK status")
		return ""
	}

	var decoded struct {
		Items []struct {
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		log.Debug().Err(err).Msg("Search response decode failed")
		return ""
	}

	snippets := make([]string, 0, maxSnippets)
	for _, item := range decoded.Items {
		if item.Snippet == "" {
			continue
		}
		snippets = append(snippets, item.Snippet)
		if len(snippets) == maxSnippets {
			break
		}
	}
	return strings.Join(snippets, "\n")
}

// EmissionFactorQuery builds the grounding query for an item.
func EmissionFactorQuery(itemName, category, unit string) string {
	return fmt.Sprintf("CO2 emission factor for %s (%s) per %s", itemName, category, unit)
}
