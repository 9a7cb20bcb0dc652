package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"

	"golang.org/x/oauth2"

	"gtasksync/internal/logging"
)

// Source indicates where a token was found.
type Source string

const (
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
	SourceFile    Source = "file"
	SourceNone    Source = "none"
)

// googleTaskScope is the OAuth scope the sync core needs.
const googleTaskScope = "https://www.googleapis.com/auth/tasks"

// clientCredentials is the relevant part of a downloaded credentials.json
// (installed-application flavour).
type clientCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		AuthURI      string `json:"auth_uri"`
		TokenURI     string `json:"token_uri"`
	} `json:"installed"`
}

// Resolver finds account tokens using the priority order:
// environment variable > OS keyring > token file.
type Resolver struct {
	logger *logging.Logger
}

// NewResolver creates a new token resolver.
func NewResolver() *Resolver {
	return &Resolver{logger: logging.GetLogger()}
}

// ResolveToken returns the serialized token for an account and where it came
// from. An empty token with SourceNone means nothing was found.
func (r *Resolver) ResolveToken(accountID, tokenPath string) (string, Source, error) {
	if token := TokenFromEnv(accountID); token != "" {
		return token, SourceEnv, nil
	}

	token, err := TokenFromKeyring(accountID)
	if err != nil {
		// A broken keyring should not block file-based tokens.
		r.logger.Debug("keyring lookup for %s failed: %v", accountID, err)
	} else if token != "" {
		return token, SourceKeyring, nil
	}

	data, err := os.ReadFile(tokenPath)
	if os.IsNotExist(err) {
		return "", SourceNone, nil
	}
	if err != nil {
		return "", SourceNone, fmt.Errorf("failed to read token file: %w", err)
	}
	return string(data), SourceFile, nil
}

// StoreToken persists a serialized token where it was originally found;
// tokens that came from the environment are not written anywhere.
func (r *Resolver) StoreToken(accountID, tokenPath, token string, source Source) error {
	switch source {
	case SourceEnv:
		return nil
	case SourceKeyring:
		return SetToken(accountID, token)
	default:
		if err := os.MkdirAll(filepath.Dir(tokenPath), 0755); err != nil {
			return fmt.Errorf("failed to create token dir: %w", err)
		}
		if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
			return fmt.Errorf("failed to write token file: %w", err)
		}
		return nil
	}
}

// TokenSource builds an auto-refreshing oauth2 token source for an account.
// credentialsPath must point at a downloaded client credentials file;
// tokenPath is the fallback token location. Refreshed tokens are persisted
// back to the source they were resolved from.
func (r *Resolver) TokenSource(ctx context.Context, accountID, credentialsPath, tokenPath string) (oauth2.TokenSource, error) {
	credData, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials for account %s: %w", accountID, err)
	}
	var creds clientCredentials
	if err := json.Unmarshal(credData, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials for account %s: %w", accountID, err)
	}
	if creds.Installed.ClientID == "" {
		return nil, fmt.Errorf("credentials for account %s carry no installed client", accountID)
	}

	raw, source, err := r.ResolveToken(accountID, tokenPath)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("no token for account %s; authorise the account first", accountID)
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("failed to parse token for account %s: %w", accountID, err)
	}

	conf := &oauth2.Config{
		ClientID:     creds.Installed.ClientID,
		ClientSecret: creds.Installed.ClientSecret,
		Scopes:       []string{googleTaskScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  creds.Installed.AuthURI,
			TokenURL: creds.Installed.TokenURI,
		},
	}

	return &persistingTokenSource{
		inner:     conf.TokenSource(ctx, &token),
		resolver:  r,
		accountID: accountID,
		tokenPath: tokenPath,
		source:    source,
		last:      token.AccessToken,
	}, nil
}

// persistingTokenSource writes refreshed tokens back to their origin so the
// next process start does not have to refresh again. Refresh for one account
// is serialised by the mutex.
type persistingTokenSource struct {
	inner     oauth2.TokenSource
	resolver  *Resolver
	accountID string
	tokenPath string
	source    Source

	mu   gosync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token, err := p.inner.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != p.last {
		p.last = token.AccessToken
		if data, merr := json.Marshal(token); merr == nil {
			if serr := p.resolver.StoreToken(p.accountID, p.tokenPath, string(data), p.source); serr != nil {
				p.resolver.logger.Warn("failed to persist refreshed token for %s: %v", p.accountID, serr)
			}
		}
	}
	return token, nil
}
