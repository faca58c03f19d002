package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/shamir-custody/api/custody"
	"github.com/ruteri/shamir-custody/cryptoutils"
)

// AdminShareClient talks to the custody admin API on behalf of one
// administrator. It signs every request and seals or unseals shares with the
// administrator's key.
type AdminShareClient struct {
	baseURL       string
	adminID       string
	privateKey    *ecdsa.PrivateKey
	privateKeyPEM []byte
	httpClient    *http.Client
}

// NewAdminShareClient creates a client for the API rooted at baseURL
// (e.g. "http://localhost:8080/admin"). The timeout defaults to 30 seconds.
func NewAdminShareClient(baseURL, adminID string, privateKeyPEM []byte, timeout ...time.Duration) (*AdminShareClient, error) {
	privateKey, err := cryptoutils.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &AdminShareClient{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		adminID:       adminID,
		privateKey:    privateKey,
		privateKeyPEM: privateKeyPEM,
		httpClient:    &http.Client{Timeout: clientTimeout},
	}, nil
}

// GetStatus queries the current status of the KMS bootstrap process.
func (c *AdminShareClient) GetStatus(ctx context.Context) (*custody.StatusResponse, error) {
	var result custody.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &result); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return &result, nil
}

// InitGenerate asks the server to generate the master key and seal shares.
func (c *AdminShareClient) InitGenerate(ctx context.Context) (*custody.InitGenerateResponse, error) {
	var result custody.InitGenerateResponse
	if err := c.do(ctx, http.MethodPost, "/init/generate", []byte("{}"), &result); err != nil {
		return nil, fmt.Errorf("init generate failed: %w", err)
	}
	return &result, nil
}

// InitRecover puts the server into recovery mode.
func (c *AdminShareClient) InitRecover(ctx context.Context) (*custody.InitRecoverResponse, error) {
	var result custody.InitRecoverResponse
	if err := c.do(ctx, http.MethodPost, "/init/recover", []byte("{}"), &result); err != nil {
		return nil, fmt.Errorf("init recover failed: %w", err)
	}
	return &result, nil
}

// RetrievedShare is a share fetched and unsealed by GetShare.
type RetrievedShare struct {
	Index     int
	SessionID string
	Encoded   []byte
}

// GetShare fetches the administrator's sealed share and decrypts it.
func (c *AdminShareClient) GetShare(ctx context.Context) (*RetrievedShare, error) {
	var result custody.AdminGetShareResponse
	if err := c.do(ctx, http.MethodGet, "/share", nil, &result); err != nil {
		return nil, fmt.Errorf("get share failed: %w", err)
	}

	encryptedShare, err := base64.StdEncoding.DecodeString(result.EncryptedShare)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted share: %w", err)
	}

	share, err := cryptoutils.DecryptWithPrivateKey(c.privateKeyPEM, encryptedShare)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt share: %w", err)
	}

	return &RetrievedShare{Index: result.ShareIndex, SessionID: result.SessionID, Encoded: share}, nil
}

// SubmitShare signs and submits an encoded share during recovery.
func (c *AdminShareClient) SubmitShare(ctx context.Context, sessionID string, encoded []byte) (*custody.SubmitShareResponse, error) {
	signature, err := cryptoutils.SignMessage(encoded, c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign share: %w", err)
	}

	body, err := json.Marshal(custody.ShareSubmission{
		SessionID: sessionID,
		Share:     base64.StdEncoding.EncodeToString(encoded),
		Signature: base64.StdEncoding.EncodeToString(signature),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var result custody.SubmitShareResponse
	if err := c.do(ctx, http.MethodPost, "/share", body, &result); err != nil {
		return nil, fmt.Errorf("submit share failed: %w", err)
	}
	return &result, nil
}

func (c *AdminShareClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := CreateSignedAdminRequest(ctx, method, c.baseURL+path, body, c.adminID, c.privateKey)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// CreateSignedAdminRequest builds a request carrying the X-Admin-ID and
// X-Admin-Signature headers. The signature covers the URL path followed by
// the body.
func CreateSignedAdminRequest(ctx context.Context, method, reqURL string, body []byte, adminID string, privateKey *ecdsa.PrivateKey) (*http.Request, error) {
	parsedURL, err := url.Parse(reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	message := append([]byte(parsedURL.Path), body...)
	signature, err := cryptoutils.SignMessage(message, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set(custody.HeaderAdminID, adminID)
	req.Header.Set(custody.HeaderAdminSignature, base64.StdEncoding.EncodeToString(signature))
	return req, nil
}
