package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"meraki-toolkit/internal/logging"
)

const (
	// DefaultBaseURL is the v1 REST endpoint of the public dashboard
	DefaultBaseURL = "https://api.meraki.com/api/v1"

	// callerTag identifies this tool in the User-Agent header
	callerTag = "merakitoolkit"

	defaultPerPage    = 1000
	defaultRetryAfter = time.Second
	maxResponseBytes  = 32 << 20
)

// Config holds the settings used to build a Client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL. Must use HTTPS.
	BaseURL string

	// Credential signs every request. Required.
	Credential Credential

	// HTTPClient defaults to a client with a 60 second timeout.
	HTTPClient *http.Client

	// Logger receives request traces. Defaults to a discarding logger.
	Logger *logging.Logger

	// PerPage bounds the page size of paginated listings
	PerPage int

	// Version is appended to the User-Agent caller tag
	Version string
}

// Client talks to the dashboard REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	credential Credential
	logger     *logging.Logger
	perPage    int
	userAgent  string
}

var _ Session = (*Client)(nil)

// NewClient validates the configuration and returns a ready client
func NewClient(config Config) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("dashboard: API client requires HTTPS (got %q)", baseURL)
	}
	if config.Credential.IsZero() {
		return nil, fmt.Errorf("dashboard: no API key configured")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	perPage := config.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	userAgent := callerTag
	if config.Version != "" {
		userAgent = callerTag + "/" + config.Version
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		credential: config.Credential,
		logger:     logger,
		perPage:    perPage,
		userAgent:  userAgent,
	}, nil
}

// ListOrganizations returns the organizations visible to the API key
func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var organizations []Organization
	if err := c.get(ctx, "getOrganizations", c.baseURL+"/organizations", &organizations); err != nil {
		return nil, err
	}
	return organizations, nil
}

// ListNetworks returns all networks of an organization, following pagination
func (c *Client) ListNetworks(ctx context.Context, organizationID string) ([]Network, error) {
	const operation = "getOrganizationNetworks"

	next := fmt.Sprintf("%s/organizations/%s/networks?perPage=%d",
		c.baseURL, url.PathEscape(organizationID), c.perPage)

	var all []Network
	for next != "" {
		body, header, err := c.do(ctx, operation, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		var page []Network
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("dashboard: %s: decoding response: %w", operation, err)
		}
		all = append(all, page...)
		next = parseLinkNext(header.Get("Link"))
		if next != "" && !c.sameOrigin(next) {
			return nil, fmt.Errorf("dashboard: %s: refusing pagination link outside %s", operation, c.baseURL)
		}
	}
	return all, nil
}

// sameOrigin reports whether rawURL shares scheme and host with the base
// URL. The API key is only ever sent there.
func (c *Client) sameOrigin(rawURL string) bool {
	next, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return next.Scheme == base.Scheme && strings.EqualFold(next.Host, base.Host)
}

// ListSSIDs returns the wireless SSIDs of a network
func (c *Client) ListSSIDs(ctx context.Context, networkID string) ([]SSID, error) {
	var ssids []SSID
	path := fmt.Sprintf("%s/networks/%s/wireless/ssids", c.baseURL, url.PathEscape(networkID))
	if err := c.get(ctx, "getNetworkWirelessSsids", path, &ssids); err != nil {
		return nil, err
	}
	return ssids, nil
}

// UpdateSSIDPSK sets the PSK of one SSID slot
func (c *Client) UpdateSSIDPSK(ctx context.Context, networkID string, number int, psk string) (SSID, error) {
	const operation = "updateNetworkWirelessSsid"

	path := fmt.Sprintf("%s/networks/%s/wireless/ssids/%d", c.baseURL, url.PathEscape(networkID), number)
	body, _, err := c.do(ctx, operation, http.MethodPut, path, map[string]string{"psk": psk})
	if err != nil {
		return SSID{}, err
	}

	var ssid SSID
	if err := json.Unmarshal(body, &ssid); err != nil {
		return SSID{}, fmt.Errorf("dashboard: %s: decoding response: %w", operation, err)
	}
	return ssid, nil
}

// Close releases idle connections held by the underlying transport
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) get(ctx context.Context, operation, rawURL string, result any) error {
	body, _, err := c.do(ctx, operation, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("dashboard: %s: decoding response: %w", operation, err)
	}
	return nil
}

// do executes one authenticated request. Transport and decoding failures
// come back as plain wrapped errors; HTTP-level failures as *RateLimitedError
// or *APIError.
func (c *Client) do(ctx context.Context, operation, method, rawURL string, requestBody any) ([]byte, http.Header, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, nil, fmt.Errorf("dashboard: %s: encoding request body: %w", operation, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("dashboard: %s: creating request: %w", operation, err)
	}
	request.Header.Set("Authorization", "Bearer "+c.credential.Key())
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", c.userAgent)
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, nil, fmt.Errorf("dashboard: %s: %s %s: %w", operation, method, request.URL.Path, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("dashboard: %s: reading response body: %w", operation, err)
	}

	c.logger.Trace("dashboard request",
		"operation", operation,
		"method", method,
		"path", request.URL.Path,
		"status", response.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if response.StatusCode == http.StatusTooManyRequests {
		return nil, nil, &RateLimitedError{
			Operation:  operation,
			RetryAfter: parseRetryAfter(response.Header.Get("Retry-After"), time.Now()),
		}
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, nil, parseAPIError(operation, response.StatusCode, body)
	}

	return body, response.Header, nil
}

// parseAPIError decodes the {"errors": [...]} body the dashboard returns
func parseAPIError(operation string, statusCode int, body []byte) *APIError {
	apiErr := &APIError{Operation: operation, StatusCode: statusCode}

	var wire struct {
		Errors []string `json:"errors"`
	}
	if json.Unmarshal(body, &wire) == nil && len(wire.Errors) > 0 {
		apiErr.Errors = wire.Errors
	} else if text := strings.TrimSpace(string(body)); text != "" {
		apiErr.Errors = []string{text}
	}
	return apiErr
}

// parseRetryAfter accepts delay-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultRetryAfter
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return defaultRetryAfter
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

// parseLinkNext extracts the rel="next" URL from an RFC 5988 Link header.
//
// Format: <https://api.meraki.com/...&startingAfter=X>; rel=next, <...>; rel=last
func parseLinkNext(header string) string {
	if header == "" {
		return ""
	}

	for _, part := range strings.Split(header, ",") {
		segments := strings.SplitN(strings.TrimSpace(part), ";", 2)
		if len(segments) != 2 {
			continue
		}

		urlPart := strings.TrimSpace(segments[0])
		relPart := strings.ReplaceAll(strings.TrimSpace(segments[1]), `"`, "")
		if relPart != "rel=next" {
			continue
		}

		if strings.HasPrefix(urlPart, "<") && strings.HasSuffix(urlPart, ">") {
			return urlPart[1 : len(urlPart)-1]
		}
	}

	return ""
}
