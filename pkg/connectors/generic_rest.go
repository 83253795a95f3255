package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/openmomo/ledgerd/pkg/models"
)

const GenericRestKey = "generic-rest"

const mockProvider = "EXT_GENERIC"

// GenericRest polls a REST API exposing a /transactions endpoint and
// normalizes its records. A base_url starting with "mock:" switches the
// connector into demo mode, where it fabricates a single deposit per fetch.
type GenericRest struct {
	client *resty.Client
	now    func() time.Time
}

// NewGenericRest creates a connector backed by the given HTTP client.
func NewGenericRest(client *resty.Client) *GenericRest {
	return &GenericRest{client: client, now: time.Now}
}

// Make sure we conform to the interface
var _ Connector = (*GenericRest)(nil)

func (c *GenericRest) Key() string {
	return GenericRestKey
}

// restItem tolerates the field aliases upstream APIs commonly use.
type restItem struct {
	Provider    string      `json:"provider"`
	Direction   string      `json:"direction"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	From        string      `json:"from"`
	FromMsisdn  string      `json:"from_msisdn"`
	To          string      `json:"to"`
	ToMsisdn    string      `json:"to_msisdn"`
	ExternalRef string      `json:"external_ref"`
	Id          string      `json:"id"`
	OccurredAt  string      `json:"occurred_at"`
	Timestamp   string      `json:"timestamp"`
	RawText     string      `json:"raw_text"`
}

type restPage struct {
	Items []restItem `json:"items"`
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// FetchSince queries the upstream /transactions endpoint for [since, until).
func (c *GenericRest) FetchSince(ctx context.Context, cfg map[string]string, since, until time.Time) ([]models.RawEvent, error) {
	baseURL := cfg["base_url"]

	if strings.HasPrefix(baseURL, "mock:") {
		now := c.now().UTC()
		return []models.RawEvent{{
			Provider:    mockProvider,
			Direction:   "deposit",
			Amount:      10000,
			Currency:    "UGX",
			FromMsisdn:  "+256700000001",
			ToMsisdn:    "+256700000009",
			ExternalRef: fmt.Sprintf("DEMO-%d", now.UnixMilli()),
			OccurredAt:  now.Format(time.RFC3339Nano),
			RawText:     "Mock deposit",
		}}, nil
	}

	if baseURL == "" {
		return nil, nil
	}

	var page restPage
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+cfg["api_key"]).
		SetQueryParams(map[string]string{
			"since": since.UTC().Format(time.RFC3339Nano),
			"until": until.UTC().Format(time.RFC3339Nano),
		}).
		SetResult(&page).
		Get(strings.TrimSuffix(baseURL, "/") + "/transactions")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("connector HTTP %d", resp.StatusCode())
	}

	events := make([]models.RawEvent, 0, len(page.Items))
	for _, it := range page.Items {
		amount, err := it.Amount.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", it.Amount, err)
		}
		rawText := it.RawText
		if rawText == "" {
			encoded, _ := json.Marshal(it)
			rawText = string(encoded)
		}
		events = append(events, models.RawEvent{
			Provider:    coalesce(it.Provider, mockProvider),
			Direction:   it.Direction,
			Amount:      amount,
			Currency:    coalesce(it.Currency, "UGX"),
			FromMsisdn:  coalesce(it.From, it.FromMsisdn),
			ToMsisdn:    coalesce(it.To, it.ToMsisdn),
			ExternalRef: coalesce(it.ExternalRef, it.Id),
			OccurredAt:  coalesce(it.OccurredAt, it.Timestamp),
			RawText:     rawText,
		})
	}
	return events, nil
}

// TestConnection issues a HEAD request against the configured base URL.
func (c *GenericRest) TestConnection(ctx context.Context, cfg map[string]string) Probe {
	baseURL := cfg["base_url"]
	if strings.HasPrefix(baseURL, "mock:") {
		return Probe{OK: true}
	}
	if baseURL == "" {
		return Probe{OK: false, Error: "missing base_url"}
	}

	resp, err := c.client.R().SetContext(ctx).Head(baseURL)
	if err != nil {
		return Probe{OK: false, Error: err.Error()}
	}
	if resp.IsError() {
		return Probe{OK: false, Error: fmt.Sprintf("HTTP %d", resp.StatusCode())}
	}
	return Probe{OK: true}
}
