package bankdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/username/limoney/backend/src/apperrors"
	"github.com/username/limoney/backend/src/logger"
	"golang.org/x/net/publicsuffix"
)

// HTTPProvider talks to the banking-data provider's REST API.
type HTTPProvider struct {
	baseURL    string
	secret     string
	httpClient http.Client
}

// NewHTTPProvider creates a provider client. The cookie jar keeps any session
// cookies the provider sets across the exchange/fetch pair.
func NewHTTPProvider(baseURL, secret string) *HTTPProvider {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar for bank provider client", "error", err)
	}

	return &HTTPProvider{
		baseURL: baseURL,
		secret:  secret,
		httpClient: http.Client{
			Jar:     jar,
			Timeout: 20 * time.Second,
		},
	}
}

func (p *HTTPProvider) post(path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling provider request: %w", err)
	}

	req, err := http.NewRequest("POST", p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Provider-Secret", p.secret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return apperrors.Upstream("banking data provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.L.Warn("Bank provider returned non-OK status",
			"path", path, "status", resp.StatusCode, "body", string(snippet))
		return apperrors.Upstream(
			fmt.Sprintf("banking data provider returned status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Upstream("decoding banking data provider response", err)
	}
	return nil
}

func (p *HTTPProvider) ExchangePublicToken(publicToken string) (*LinkResult, error) {
	var result LinkResult
	err := p.post("/link/exchange", map[string]string{"public_token": publicToken}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (p *HTTPProvider) FetchSnapshot(accessToken string) (*Snapshot, error) {
	var snapshot Snapshot
	err := p.post("/snapshot", map[string]string{"access_token": accessToken}, &snapshot)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
