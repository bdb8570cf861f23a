// ABOUTME: OpenStack control plane client for scheduler pool stats and volume types
// ABOUTME: Keystone v3 password auth with token renewal and optional SOCKS5 proxy

package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	proxy "github.com/cloudfoundry/socks5-proxy"
	"github.com/markalston/cinder-capacity-exporter/config"
	"github.com/markalston/cinder-capacity-exporter/models"
)

type OpenStackClient struct {
	authURL       string
	username      string
	password      string
	projectName   string
	userDomain    string
	projectDomain string
	region        string

	client      *http.Client
	token       string
	tokenExpiry time.Time
	storageURL  string
	tokenMutex  sync.RWMutex
}

func NewOpenStackClient(cfg *config.Config) *OpenStackClient {
	// Normalize auth URL - deployments sometimes configure it without the
	// identity version suffix
	authURL := strings.TrimSuffix(cfg.OSAuthURL, "/")
	if !strings.HasSuffix(authURL, "/v3") {
		authURL = authURL + "/v3"
	}

	tlsConfig := &tls.Config{}
	if cfg.OSSkipSSLValidation {
		slog.Warn("OS_SKIP_SSL_VALIDATION enabled, TLS verification disabled")
		tlsConfig.InsecureSkipVerify = true
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: 30 * time.Second,
	}

	// Control planes behind a jump host are reached through a SOCKS5 proxy
	allProxy := cfg.OSProxy
	if allProxy == "" {
		allProxy = os.Getenv("ALL_PROXY")
	}
	if allProxy != "" {
		dialContextFunc := createSOCKS5DialContextFunc(allProxy)
		if dialContextFunc != nil {
			transport.DialContext = dialContextFunc
		}
	}

	return &OpenStackClient{
		authURL:       authURL,
		username:      cfg.OSUsername,
		password:      cfg.OSPassword,
		projectName:   cfg.OSProjectName,
		userDomain:    cfg.OSUserDomainName,
		projectDomain: cfg.OSProjectDomainName,
		region:        cfg.OSRegionName,
		client: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
	}
}

// SetHTTPClient allows overriding the HTTP client (useful for testing)
func (o *OpenStackClient) SetHTTPClient(client *http.Client) {
	o.client = client
}

// Authenticate obtains a scoped Keystone token and discovers the block
// storage endpoint from the service catalog. Cached until near expiry.
func (o *OpenStackClient) Authenticate() error {
	o.tokenMutex.RLock()
	if o.token != "" && time.Now().Before(o.tokenExpiry) {
		o.tokenMutex.RUnlock()
		return nil
	}
	o.tokenMutex.RUnlock()

	o.tokenMutex.Lock()
	defer o.tokenMutex.Unlock()

	// Re-check after acquiring write lock
	if o.token != "" && time.Now().Before(o.tokenExpiry) {
		return nil
	}

	body := map[string]any{
		"auth": map[string]any{
			"identity": map[string]any{
				"methods": []string{"password"},
				"password": map[string]any{
					"user": map[string]any{
						"name":     o.username,
						"domain":   map[string]string{"name": o.userDomain},
						"password": o.password,
					},
				},
			},
			"scope": map[string]any{
				"project": map[string]any{
					"name":   o.projectName,
					"domain": map[string]string{"name": o.projectDomain},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequest("POST", o.authURL+"/auth/tokens", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("keystone auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("keystone auth returned status %d: %s", resp.StatusCode, string(respBody))
	}

	token := resp.Header.Get("X-Subject-Token")
	if token == "" {
		return fmt.Errorf("keystone auth response missing X-Subject-Token header")
	}

	var tokenResp struct {
		Token struct {
			ExpiresAt time.Time `json:"expires_at"`
			Catalog   []struct {
				Type      string `json:"type"`
				Endpoints []struct {
					Interface string `json:"interface"`
					Region    string `json:"region"`
					URL       string `json:"url"`
				} `json:"endpoints"`
			} `json:"catalog"`
		} `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to parse keystone token response: %w", err)
	}

	storageURL := ""
	for _, service := range tokenResp.Token.Catalog {
		if service.Type != "volumev3" && service.Type != "block-storage" {
			continue
		}
		for _, endpoint := range service.Endpoints {
			if endpoint.Interface != "public" {
				continue
			}
			if o.region != "" && endpoint.Region != o.region {
				continue
			}
			storageURL = strings.TrimSuffix(endpoint.URL, "/")
			break
		}
		if storageURL != "" {
			break
		}
	}
	if storageURL == "" {
		return fmt.Errorf("no public block storage endpoint in catalog for region %q", o.region)
	}

	o.token = token
	o.storageURL = storageURL
	// Renew a minute early to avoid racing the expiry
	expiry := tokenResp.Token.ExpiresAt
	if expiry.IsZero() {
		expiry = time.Now().Add(1 * time.Hour)
	}
	o.tokenExpiry = expiry.Add(-1 * time.Minute)

	slog.Debug("Authenticated with keystone", "storage_url", storageURL, "expires", o.tokenExpiry)
	return nil
}

// GetPools fetches detailed scheduler pool stats from the current region.
func (o *OpenStackClient) GetPools() ([]models.BackendPool, error) {
	var poolsResp struct {
		Pools []models.BackendPool `json:"pools"`
	}
	if err := o.getJSON("/scheduler-stats/get_pools?detail=true", &poolsResp); err != nil {
		return nil, fmt.Errorf("failed to fetch scheduler pools: %w", err)
	}
	return poolsResp.Pools, nil
}

// GetVolumeTypes fetches the volume type definitions.
func (o *OpenStackClient) GetVolumeTypes() ([]models.VolumeType, error) {
	var typesResp struct {
		VolumeTypes []models.VolumeType `json:"volume_types"`
	}
	if err := o.getJSON("/types", &typesResp); err != nil {
		return nil, fmt.Errorf("failed to fetch volume types: %w", err)
	}
	return typesResp.VolumeTypes, nil
}

// getJSON issues an authenticated GET against the block storage endpoint,
// renewing the token once on a 401.
func (o *OpenStackClient) getJSON(path string, out any) error {
	if err := o.Authenticate(); err != nil {
		return err
	}

	resp, err := o.doGet(path)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		slog.Info("Token rejected, renewing keystone session")
		o.tokenMutex.Lock()
		o.token = ""
		o.tokenMutex.Unlock()
		if err := o.Authenticate(); err != nil {
			return err
		}
		resp, err = o.doGet(path)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("block storage API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse block storage response: %w", err)
	}
	return nil
}

func (o *OpenStackClient) doGet(path string) (*http.Response, error) {
	o.tokenMutex.RLock()
	token := o.token
	storageURL := o.storageURL
	o.tokenMutex.RUnlock()

	req, err := http.NewRequest("GET", storageURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("X-Auth-Token", token)
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	return resp, nil
}

// createSOCKS5DialContextFunc creates a dial function for SSH+SOCKS5 proxy connections.
// Supports format: ssh+socks5://user@host:port?private-key=/path/to/key
func createSOCKS5DialContextFunc(allProxy string) func(ctx context.Context, network, address string) (net.Conn, error) {
	// Strip ssh+ prefix if present
	allProxy = strings.TrimPrefix(allProxy, "ssh+")

	proxyURL, err := url.Parse(allProxy)
	if err != nil {
		slog.Error("Failed to parse OS_PROXY URL", "error", err)
		return nil
	}

	queryMap, err := url.ParseQuery(proxyURL.RawQuery)
	if err != nil {
		slog.Error("Failed to parse OS_PROXY query params", "error", err)
		return nil
	}

	username := ""
	if proxyURL.User != nil {
		username = proxyURL.User.Username()
	}

	proxySSHKeyPath := queryMap.Get("private-key")
	if proxySSHKeyPath == "" {
		slog.Error("OS_PROXY missing required 'private-key' query param")
		return nil
	}

	proxySSHKey, err := os.ReadFile(proxySSHKeyPath)
	if err != nil {
		slog.Error("Failed to read SSH private key", "path", proxySSHKeyPath, "error", err)
		return nil
	}

	socks5Proxy := proxy.NewSocks5Proxy(proxy.NewHostKey(), log.Default(), 1*time.Minute)

	var (
		dialer proxy.DialFunc
		mut    sync.RWMutex
	)

	return func(ctx context.Context, network, address string) (net.Conn, error) {
		mut.RLock()
		haveDialer := dialer != nil
		mut.RUnlock()

		if haveDialer {
			return dialer(network, address)
		}

		mut.Lock()
		defer mut.Unlock()
		if dialer == nil {
			proxyDialer, err := socks5Proxy.Dialer(username, string(proxySSHKey), proxyURL.Host)
			if err != nil {
				return nil, fmt.Errorf("error creating SOCKS5 dialer: %w", err)
			}
			dialer = proxyDialer
		}
		return dialer(network, address)
	}
}
