// Package token hands out bearer tokens for backend calls.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/pysugar/aoai-nexus/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// ExpirySkew refreshes tokens this long before they expire.
	ExpirySkew = 2 * time.Minute

	defaultAuthorityHost = "https://login.microsoftonline.com"
	fetchTimeout         = 30 * time.Second
)

// Provider returns a bearer token for scope. An empty token means "send no Authorization".
type Provider interface {
	Token(ctx context.Context, scope string) (string, error)
}

// Manager caches one token source per scope for the configured auth mode.
type Manager struct {
	httpClient *http.Client

	mu      sync.Mutex
	auth    config.AuthConfig
	factory func(scope string) (oauth2.TokenSource, error)
	sources map[string]oauth2.TokenSource
}

type Option func(*Manager)

// WithHTTPClient sets the client used against the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

func NewManager(auth config.AuthConfig, opts ...Option) (*Manager, error) {
	m := &Manager{httpClient: &http.Client{Timeout: fetchTimeout}}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.Reconfigure(auth); err != nil {
		return nil, err
	}
	return m, nil
}

// Reconfigure switches to new auth settings and drops every cached token. It is a
// no-op when auth is unchanged.
func (m *Manager) Reconfigure(auth config.AuthConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.factory != nil && auth == m.auth {
		return nil
	}
	factory, err := m.newFactory(auth)
	if err != nil {
		return err
	}
	m.auth = auth
	m.factory = factory
	m.sources = make(map[string]oauth2.TokenSource)
	return nil
}

// Token returns a cached token for scope, fetching a new one when it is within
// ExpirySkew of expiring. It returns when ctx ends even if a fetch is still running;
// that fetch completes under fetchTimeout and fills the cache for the next call.
func (m *Manager) Token(ctx context.Context, scope string) (string, error) {
	m.mu.Lock()
	if m.factory == nil {
		m.mu.Unlock()
		return "", nil
	}
	if scope == "" {
		scope = m.auth.Scope
	}
	src, ok := m.sources[scope]
	if !ok {
		raw, err := m.factory(scope)
		if err != nil {
			m.mu.Unlock()
			return "", err
		}
		src = oauth2.ReuseTokenSourceWithExpiry(nil, raw, ExpirySkew)
		m.sources[scope] = src
	}
	m.mu.Unlock()

	tok, err := fetch(ctx, src)
	if err != nil {
		return "", fmt.Errorf("failed to acquire token for scope %q: %w", scope, err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token endpoint returned an empty access token")
	}
	return tok.AccessToken, nil
}

type fetchResult struct {
	tok *oauth2.Token
	err error
}

func fetch(ctx context.Context, src oauth2.TokenSource) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	done := make(chan fetchResult, 1)
	go func() {
		tok, err := src.Token()
		done <- fetchResult{tok, err}
	}()
	select {
	case r := <-done:
		return r.tok, r.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (m *Manager) newFactory(auth config.AuthConfig) (func(string) (oauth2.TokenSource, error), error) {
	authority := strings.TrimRight(strings.TrimSpace(auth.AuthorityHost), "/")
	if authority == "" {
		authority = defaultAuthorityHost
	}
	clientOptions := azcore.ClientOptions{
		Cloud: cloud.Configuration{ActiveDirectoryAuthorityHost: authority + "/"},
	}

	switch auth.Mode {
	case config.AuthModeNone:
		return nil, nil
	case config.AuthModeStatic:
		if auth.Token == "" {
			return nil, errors.New("auth mode static requires auth.token")
		}
		return func(string) (oauth2.TokenSource, error) {
			return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: auth.Token, TokenType: "Bearer"}), nil
		}, nil
	case config.AuthModeServicePrincipal, "":
		if auth.TenantID == "" || auth.ClientID == "" || auth.ClientSecret == "" {
			return nil, errors.New("auth mode servicePrincipal requires tenantId, clientId and clientSecret")
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, m.httpClient)
		return func(scope string) (oauth2.TokenSource, error) {
			cc := &clientcredentials.Config{
				ClientID:     auth.ClientID,
				ClientSecret: auth.ClientSecret,
				TokenURL:     authority + "/" + auth.TenantID + "/oauth2/v2.0/token",
				Scopes:       []string{scope},
				AuthStyle:    oauth2.AuthStyleInParams,
			}
			return cc.TokenSource(ctx), nil
		}, nil
	case config.AuthModeManagedIdentity:
		cred, err := managedIdentity(auth.ManagedIdentityClientID, clientOptions)
		if err != nil {
			return nil, err
		}
		return azureFactory(cred), nil
	case config.AuthModeDefault:
		cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
			ClientOptions: clientOptions,
			TenantID:      auth.TenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create default azure credential: %w", err)
		}
		if auth.ManagedIdentityClientID == "" {
			return azureFactory(cred), nil
		}
		// A user-assigned identity is tried first, then the default chain.
		mi, err := managedIdentity(auth.ManagedIdentityClientID, clientOptions)
		if err != nil {
			return nil, err
		}
		chain, err := azidentity.NewChainedTokenCredential([]azcore.TokenCredential{mi, cred}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to chain azure credentials: %w", err)
		}
		return azureFactory(chain), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", auth.Mode)
	}
}

func managedIdentity(clientID string, clientOptions azcore.ClientOptions) (*azidentity.ManagedIdentityCredential, error) {
	opts := &azidentity.ManagedIdentityCredentialOptions{ClientOptions: clientOptions}
	if clientID != "" {
		opts.ID = azidentity.ClientID(clientID)
	}
	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create managed identity credential: %w", err)
	}
	return cred, nil
}

func azureFactory(cred azcore.TokenCredential) func(string) (oauth2.TokenSource, error) {
	return func(scope string) (oauth2.TokenSource, error) {
		return &azureSource{cred: cred, scope: scope}, nil
	}
}

// azureSource adapts an Azure credential to oauth2.TokenSource.
type azureSource struct {
	cred  azcore.TokenCredential
	scope string
}

func (s *azureSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	tok, err := s.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{s.scope}})
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok.Token, TokenType: "Bearer", Expiry: tok.ExpiresOn}, nil
}
