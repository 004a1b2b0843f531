package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/browser"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"heysiwi/internal/core"
)

const (
	tokenFilePermission = 0600

	// authState is the OAuth state parameter. The callback server only ever
	// listens on loopback for the duration of one consent flow, so a fixed
	// value is sufficient.
	authState = "heysiwi-auth-state"

	callbackShutdownTimeout = 5 * time.Second
)

// Session is an authenticated Spotify API session. HTTP is the underlying
// OAuth transport, used for requests the typed client does not cover.
type Session struct {
	API  *spotify.Client
	HTTP *http.Client
	User string
}

// TokenData wraps the OAuth token for persistence.
type TokenData struct {
	Token *oauth2.Token `json:"token"`
}

// Authenticator owns the OAuth dance against the Spotify accounts service.
type Authenticator struct {
	config *core.SpotifyConfig
	auth   *spotifyauth.Authenticator
	logger *zap.Logger
}

func NewAuthenticator(config *core.SpotifyConfig, logger *zap.Logger) *Authenticator {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
		),
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
	)

	return &Authenticator{
		config: config,
		auth:   auth,
		logger: logger,
	}
}

// Authenticate returns a ready session. A saved token is reused when it still
// works; otherwise the user is walked through the browser consent flow and
// the fresh token is saved for next time.
func (a *Authenticator) Authenticate(ctx context.Context) (*Session, error) {
	if token, err := a.loadToken(); err == nil {
		session, err := a.buildSession(ctx, token)
		if err == nil {
			a.logger.Info("Authenticated with saved token", zap.String("user", session.User))
			return session, nil
		}
		a.logger.Warn("Saved token invalid, starting OAuth flow", zap.Error(err))
	} else {
		a.logger.Info("No saved token found, starting OAuth flow")
	}

	token, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}

	if saveErr := a.saveToken(token); saveErr != nil {
		a.logger.Warn("Failed to save token", zap.Error(saveErr))
	}

	session, err := a.buildSession(ctx, token)
	if err != nil {
		return nil, err
	}

	a.logger.Info("OAuth flow completed successfully", zap.String("user", session.User))
	return session, nil
}

func (a *Authenticator) buildSession(ctx context.Context, token *oauth2.Token) (*Session, error) {
	httpClient := a.auth.Client(ctx, token)
	api := spotify.New(httpClient)

	user, err := api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	return &Session{
		API:  api,
		HTTP: httpClient,
		User: user.DisplayName,
	}, nil
}

// authorize runs the consent flow: serve the redirect URL on loopback, send
// the user's browser to the Spotify consent page, and exchange the code that
// comes back on the callback.
func (a *Authenticator) authorize(ctx context.Context) (*oauth2.Token, error) {
	callback, err := url.Parse(a.config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %s: %w", a.config.RedirectURL, err)
	}
	callbackPath := callback.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	tokens := make(chan *oauth2.Token, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		token, err := a.auth.Token(r.Context(), authState, r)
		if err != nil {
			http.Error(w, "Authorization failed", http.StatusForbidden)
			a.logger.Error("Failed to exchange authorization code", zap.Error(err))
			return
		}

		fmt.Fprintln(w, "Authorization complete! You can close this tab and head back to the terminal.")
		select {
		case tokens <- token:
		default:
		}
	})

	server := &http.Server{
		Addr:              callback.Host,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var token *oauth2.Token
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("Failed to shut down callback server", zap.Error(err))
			}
		}()

		select {
		case token = <-tokens:
			return nil
		case <-groupCtx.Done():
			return groupCtx.Err()
		}
	})

	authURL := a.auth.AuthURL(authState)
	fmt.Printf("Opening your browser for Spotify authorization. If nothing happens, visit:\n%s\n", authURL)
	if err := browser.OpenURL(authURL); err != nil {
		a.logger.Debug("Failed to open browser", zap.Error(err))
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return token, nil
}

func (a *Authenticator) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.config.TokenPath)
	if err != nil {
		return nil, err
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, err
	}
	if tokenData.Token == nil {
		return nil, errors.New("token file holds no token")
	}

	return tokenData.Token, nil
}

func (a *Authenticator) saveToken(token *oauth2.Token) error {
	tokenData := TokenData{Token: token}

	data, err := json.MarshalIndent(tokenData, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(a.config.TokenPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(a.config.TokenPath, data, tokenFilePermission)
}
