// Package observability implements NightWatch's capability.ObservabilityClient
// against New Relic's NerdGraph (GraphQL) API. Grounded on the
// platform's newrelic.py: the query_nrql helper, the fetch_errors and
// fetch_traces NRQL shapes, and on pkg/runbook/github.go's style of a
// plain net/http client with a bearer/API-key header.
package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
	"github.com/nightwatch-dev/nightwatch/pkg/model"
)

const defaultBaseURL = "https://api.newrelic.com/graphql"

// Client is a NerdGraph client scoped to one account and application.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	accountID  string
	appName    string
	log        *slog.Logger
}

// New returns a Client for the given New Relic account/app, authenticated
// with apiKey.
func New(apiKey, accountID, appName string, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		accountID:  accountID,
		appName:    appName,
		log:        log,
	}
}

// NewWithAPIURL creates a client that targets a custom NerdGraph endpoint.
func NewWithAPIURL(apiKey, accountID, appName, apiURL string, log *slog.Logger) *Client {
	c := New(apiKey, accountID, appName, log)
	c.baseURL = apiURL
	return c
}

var _ capability.ObservabilityClient = (*Client)(nil)

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlResponse struct {
	Data struct {
		Actor struct {
			Account struct {
				NRQL struct {
					Results []map[string]any `json:"results"`
				} `json:"nrql"`
			} `json:"account"`
		} `json:"actor"`
	} `json:"data"`
	Errors []map[string]any `json:"errors"`
}

// Query executes an NRQL string wrapped in a NerdGraph query and returns
// its result rows.
func (c *Client) Query(ctx context.Context, nrql string) ([]map[string]any, error) {
	graphql := fmt.Sprintf(`{
  actor {
    account(id: %s) {
      nrql(query: "%s") {
        results
      }
    }
  }
}`, c.accountID, escapeGraphQLString(nrql))

	body, err := json.Marshal(graphqlRequest{Query: graphql})
	if err != nil {
		return nil, fmt.Errorf("observability: encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("observability: creating request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("observability: querying new relic: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("observability: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("observability: new relic returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("observability: decoding response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		if c.log != nil {
			c.log.Error("nrql query error", "errors", parsed.Errors)
		}
		return nil, nil
	}
	return parsed.Data.Actor.Account.NRQL.Results, nil
}

// FetchErrors queries TransactionError, grouped by (error.class,
// transactionName), since the given lookback window.
func (c *Client) FetchErrors(ctx context.Context, since string) ([]model.ErrorGroup, error) {
	nrql := fmt.Sprintf(
		"SELECT count(*) AS occurrences, latest(error.class) AS error_class, "+
			"latest(error.message) AS error_message, latest(transactionName) AS transaction, "+
			"latest(path) AS http_path, latest(host) AS host, latest(entityGuid) AS entity_guid, "+
			"latest(timestamp) AS last_seen FROM TransactionError WHERE appName = '%s' "+
			"SINCE %s ago FACET error.class, transactionName LIMIT 50",
		c.appName, since,
	)

	if c.log != nil {
		c.log.Info("querying new relic for errors", "since", since)
	}
	rows, err := c.Query(ctx, nrql)
	if err != nil {
		return nil, err
	}

	groups := make([]model.ErrorGroup, 0, len(rows))
	total := 0
	for _, row := range rows {
		occurrences := intField(row, "occurrences", 1)
		total += occurrences
		groups = append(groups, model.ErrorGroup{
			ErrorClass:  stringField(row, "error_class"),
			Transaction: stringField(row, "transaction"),
			Message:     truncateField(row, "error_message", 500),
			Occurrences: occurrences,
			LastSeen:    stringField(row, "last_seen"),
			HTTPPath:    stringField(row, "http_path"),
			Host:        stringField(row, "host"),
			EntityGUID:  stringField(row, "entity_guid"),
		})
	}

	if c.log != nil {
		c.log.Info("found error groups", "groups", len(groups), "total_occurrences", total)
	}
	return groups, nil
}

// FetchTraces fetches TransactionError and ErrorTrace rows for a
// specific error group.
func (c *Client) FetchTraces(ctx context.Context, err model.ErrorGroup, since string) (model.TraceData, error) {
	txNRQL := fmt.Sprintf(
		"SELECT error.message, error.class, appName, transactionName, path, host, timestamp, traceId, entityGuid "+
			"FROM TransactionError WHERE appName = '%s' AND error.class = '%s' AND transactionName = '%s' "+
			"SINCE %s ago LIMIT 5",
		c.appName, escapeNRQL(err.ErrorClass), escapeNRQL(err.Transaction), since,
	)
	traceNRQL := fmt.Sprintf(
		"SELECT * FROM ErrorTrace WHERE appName = '%s' AND error.class = '%s' SINCE %s ago LIMIT 3",
		c.appName, escapeNRQL(err.ErrorClass), since,
	)

	txErrors, qerr := c.Query(ctx, txNRQL)
	if qerr != nil {
		return model.TraceData{}, qerr
	}
	errorTraces, qerr := c.Query(ctx, traceNRQL)
	if qerr != nil {
		return model.TraceData{}, qerr
	}

	if c.log != nil {
		c.log.Info("fetched traces", "error_class", err.ErrorClass, "tx_errors", len(txErrors), "error_traces", len(errorTraces))
	}
	return model.TraceData{TransactionErrors: txErrors, ErrorTraces: errorTraces}, nil
}

func stringField(row map[string]any, key string) string {
	if v, ok := row[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func truncateField(row map[string]any, key string, max int) string {
	s := stringField(row, key)
	if len(s) > max {
		return s[:max]
	}
	return s
}

func intField(row map[string]any, key string, fallback int) int {
	v, ok := row[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

func escapeNRQL(value string) string {
	return strings.ReplaceAll(value, "'", "\\'")
}

func escapeGraphQLString(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}
