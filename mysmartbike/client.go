package mysmartbike

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AuthError is returned when the cloud rejects credentials or a token.
type AuthError struct {
	Status int
	Body   string
}

func (e AuthError) Error() string {
	return fmt.Sprintf("mysmartbike auth error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// StatusError surfaces non-auth HTTP failures.
type StatusError struct {
	Status int
	Body   string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("mysmartbike api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// TokenSource provides bearer tokens for authenticated calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	TriggerRefresh(ctx context.Context)
}

// Config defines runtime configuration for the MySmartBike client.
type Config struct {
	BaseURL    string
	Limit      int
	HTTPClient *http.Client
}

// Client talks to the MySmartBike cloud API.
type Client struct {
	baseURL    string
	limit      int
	tokens     TokenSource
	httpClient *http.Client
}

func NewClient(cfg Config, tokens TokenSource) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:    baseURL,
		limit:      limit,
		tokens:     tokens,
		httpClient: httpClient,
	}, nil
}

// Login exchanges account credentials for a bearer token.
func Login(ctx context.Context, httpClient *http.Client, baseURL, email, password string) (string, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	form := url.Values{
		"email":       {email},
		"password":    {password},
		"contents_id": {""},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	decorate(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("login read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var envelope struct {
		Status int `json:"status"`
		Data   struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("login decode: %w", err)
	}

	if envelope.Status != http.StatusOK {
		return "", AuthError{Status: envelope.Status, Body: string(body)}
	}
	if envelope.Data.Token == "" {
		return "", fmt.Errorf("login response missing token")
	}

	return envelope.Data.Token, nil
}

// Bikes pulls the account's bikes keyed by serial.
func (c *Client) Bikes(ctx context.Context) (map[string]Bike, error) {
	path := objectsPath + "?limit=" + strconv.Itoa(c.limit)
	resp, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read objects: %w", err)
	}
	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusForbidden {
			return nil, AuthError{Status: resp.StatusCode, Body: string(body)}
		}
		return nil, StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var envelope struct {
		Status int `json:"status"`
		Data   []struct {
			Serial           string   `json:"serial"`
			Odometry         float64  `json:"odometry"`
			Longitude        *float64 `json:"longitude"`
			Latitude         *float64 `json:"latitude"`
			LastPositionDate string   `json:"last_position_date"`
			ObjectModel      struct {
				ModelName string `json:"model_name"`
				Brand     struct {
					Alias string `json:"alias"`
				} `json:"brand"`
			} `json:"object_model"`
			ObjectTree []map[string]any `json:"object_tree"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode objects: %w", err)
	}
	if envelope.Status != http.StatusOK {
		if envelope.Status == http.StatusUnauthorized || envelope.Status == http.StatusForbidden {
			return nil, AuthError{Status: envelope.Status, Body: string(body)}
		}
		return nil, StatusError{Status: envelope.Status, Body: string(body)}
	}

	bikes := make(map[string]Bike, len(envelope.Data))
	for _, raw := range envelope.Data {
		bike := Bike{
			Serial:         raw.Serial,
			Brand:          raw.ObjectModel.Brand.Alias,
			Model:          raw.ObjectModel.ModelName,
			OdometryMeters: raw.Odometry,
			Latitude:       raw.Latitude,
			Longitude:      raw.Longitude,
			LastPosition:   parsePositionDate(raw.LastPositionDate),
		}
		// Battery components live somewhere in the object tree; the
		// last entry carrying a key wins.
		for _, entry := range raw.ObjectTree {
			if value := numberField(entry, "state_of_charge"); value != nil {
				bike.StateOfCharge = value
			}
			if value := numberField(entry, "remaining_capacity"); value != nil {
				bike.RemainingCapacity = value
			}
		}
		bikes[bike.Serial] = bike
	}

	return bikes, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string) (*http.Response, error) {
	accessToken, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	decorate(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	c.tokens.TriggerRefresh(ctx)
	return nil, AuthError{Status: resp.StatusCode, Body: string(body)}
}

func decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "de-DE")
	req.Header.Set("X-Theme", headerTheme)
	req.Header.Set("X-App", headerApp)
	req.Header.Set("X-Platform", headerPlatform)
	req.Header.Set("X-Version", headerVersion)
}

func parsePositionDate(value string) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	ts, err := time.Parse(timeLayout, value)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

func numberField(entry map[string]any, key string) *float64 {
	raw, ok := entry[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		return &v
	case int:
		value := float64(v)
		return &value
	case string:
		value, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &value
	default:
		return nil
	}
}
