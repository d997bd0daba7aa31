// Package exchangerate looks up the conversion rate snapshotted on every invoice.
package exchangerate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

const unavailableCode = "exchange_rate_unavailable"

// Source returns how many units of currency one unit of the base buys.
type Source interface {
	Rate(ctx context.Context, currency string) (decimal.Decimal, error)
}

func unavailable(currency string, err error) error {
	return apperr.Wrap(apperr.KindTransient, unavailableCode,
		fmt.Sprintf("exchange rate for %s is unavailable", currency), err)
}

type HTTPSource struct {
	client  *http.Client
	baseURL string
	base    string
}

func NewHTTPSource(client *http.Client, baseURL, base string) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSource{
		client:  client,
		baseURL: baseURL,
		base:    strings.ToUpper(base),
	}
}

type ratesResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *HTTPSource) Rate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)
	if currency == s.base {
		return decimal.NewFromInt(1), nil
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return decimal.Zero, unavailable(currency, err)
	}
	q := u.Query()
	q.Set("base", s.base)
	q.Set("symbols", currency)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, unavailable(currency, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, unavailable(currency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, unavailable(currency, fmt.Errorf("rate provider returned %d", resp.StatusCode))
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, unavailable(currency, fmt.Errorf("decode rates: %w", err))
	}

	rate, ok := body.Rates[currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, unavailable(currency, fmt.Errorf("no rate for %s", currency))
	}
	return rate, nil
}
