// Package ratesource предоставляет клиент внешнего источника курса валют.
package ratesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultURL указывает на ежедневную сводку курсов ЦБ РФ в формате JSON.
const DefaultURL = "https://www.cbr-xml-daily.ru/daily_json.js"

// ErrCurrencyNotFound возвращается, если в ответе нет нужной валюты.
var ErrCurrencyNotFound = errors.New("currency not found in payload")

// Client запрашивает курс иностранной валюты к локальной.
type Client struct {
	http     *resty.Client
	url      string
	currency string
}

type dailyPayload struct {
	Valute map[string]valute `json:"Valute"`
}

type valute struct {
	CharCode string  `json:"CharCode"`
	Nominal  float64 `json:"Nominal"`
	Value    float64 `json:"Value"`
}

// NewClient создаёт клиент источника курса для указанной валюты.
func NewClient(url, currency string) *Client {
	if url == "" {
		url = DefaultURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	return &Client{
		http:     resty.New().SetTimeout(5 * time.Second),
		url:      url,
		currency: strings.ToUpper(currency),
	}
}

// FetchRate возвращает количество единиц локальной валюты за одну единицу иностранной.
func (c *Client) FetchRate(ctx context.Context) (float64, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode())
	}

	var payload dailyPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	v, ok := payload.Valute[c.currency]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrCurrencyNotFound, c.currency)
	}

	nominal := v.Nominal
	if nominal == 0 {
		nominal = 1
	}

	rate := v.Value / nominal
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("invalid rate %v for %s", rate, c.currency)
	}

	return rate, nil
}
