package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DateTimeLayout is the timestamp format the commerce service accepts.
const DateTimeLayout = "2006-01-02T15:04:05Z"

// FormatTime renders t in the commerce wire format, nil when t is nil.
func FormatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(DateTimeLayout)
	return &s
}

// AttributeValue is a product attribute in a publication request.
type AttributeValue struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Product is one sellable item of a publication request.
type Product struct {
	Expires         *string          `json:"expires,omitempty"`
	Price           string           `json:"price"`
	ProductClass    string           `json:"product_class"`
	AttributeValues []AttributeValue `json:"attribute_values"`
}

// PublicationRequest is the body of POST publication/.
type PublicationRequest struct {
	ID                   string    `json:"id"`
	UUID                 string    `json:"uuid"`
	Name                 string    `json:"name"`
	VerificationDeadline *string   `json:"verification_deadline"`
	Products             []Product `json:"products"`
}

// PublishedProduct is a product echoed back by the commerce service.
type PublishedProduct struct {
	PartnerSKU string `json:"partner_sku"`
}

// PublicationResponse lists the products in the order they were submitted.
type PublicationResponse struct {
	Products []PublishedProduct `json:"products"`
}

// APIError is returned when the commerce service rejects a publication with a message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ecommerce publication failed (%d): %s", e.Status, e.Message)
}

// StatusError is returned for a failed response without a usable message.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ecommerce request failed with status %d", e.Status)
}

// Client talks to the commerce service API.
type Client struct {
	http    *http.Client
	baseURL *url.URL
}

// New builds a client rooted at apiURL. httpClient carries authentication.
func New(httpClient *http.Client, apiURL string) (*Client, error) {
	apiURL = strings.TrimSpace(apiURL)
	if apiURL == "" {
		return nil, fmt.Errorf("ecommerce api url is empty")
	}
	parsed, err := url.Parse(apiURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid ecommerce api url: %s", apiURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient, baseURL: parsed}, nil
}

// PublicationURL resolves publication/ against the configured API root.
func (c *Client) PublicationURL() string {
	return c.baseURL.ResolveReference(&url.URL{Path: "publication/"}).String()
}

// Publish submits the run and its products in one request.
func (c *Client) Publish(ctx context.Context, req PublicationRequest) (*PublicationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.PublicationURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ecommerce publication: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 600 {
		var failure struct {
			Error interface{} `json:"error"`
		}
		if json.Unmarshal(raw, &failure) == nil && failure.Error != nil {
			if msg := fmt.Sprint(failure.Error); msg != "" {
				return nil, &APIError{Status: resp.StatusCode, Message: msg}
			}
		}
		return nil, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	var out PublicationResponse
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode ecommerce publication response: %w", err)
	}
	return &out, nil
}
