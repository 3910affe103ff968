package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"syncer/src/config"
	"syncer/src/schemas"
	"syncer/src/utils"
)

const (
	authorizeURL = "https://www.linkedin.com/oauth/v2/authorization"
	tokenURL     = "https://www.linkedin.com/oauth/v2/accessToken"

	// How long the callback server waits for the browser redirect.
	callbackTimeout = 2 * time.Minute

	// LinkedIn tokens default to 60 days when the response omits expires_in.
	defaultExpirySecs = 5184000
)

// Authenticator runs the OAuth 2.0 authorization-code flow: open the
// consent URL in a browser, capture the redirect on a local callback
// server, exchange the code for a token and persist it.
type Authenticator struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	TokenPath    string
}

func NewAuthenticator(cfg *config.Config) *Authenticator {
	li := cfg.ExternalClients.LinkedIn
	return &Authenticator{
		ClientID:     li.ClientID,
		ClientSecret: li.ClientSecret,
		RedirectURL:  li.RedirectURL,
		Scope:        li.Scope,
		TokenPath:    li.TokenPath,
	}
}

type callbackResult struct {
	code  string
	state string
	err   string
}

// Authenticate performs the full browser flow and saves the token.
func (a *Authenticator) Authenticate(ctx context.Context) (*schemas.TokenResponse, error) {
	logger := utils.LoggerFromContext(ctx)

	if a.ClientID == "" || a.ClientSecret == "" {
		return nil, fmt.Errorf("linkedin clientId and clientSecret must be configured")
	}

	redirect, err := url.Parse(a.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %q: %w", a.RedirectURL, err)
	}
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	state := uuid.NewString()
	consentURL := authorizeURL + "?" + url.Values{
		"response_type": {"code"},
		"client_id":     {a.ClientID},
		"redirect_uri":  {a.RedirectURL},
		"state":         {state},
		"scope":         {a.Scope},
	}.Encode()

	results := make(chan callbackResult, 1)
	router := chi.NewRouter()
	router.Get(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		result := callbackResult{
			code:  q.Get("code"),
			state: q.Get("state"),
			err:   q.Get("error_description"),
		}
		if result.err == "" && q.Get("error") != "" {
			result.err = q.Get("error")
		}

		w.Header().Set("Content-Type", "text/html")
		if result.code != "" {
			fmt.Fprint(w, "<h2>LinkedIn authorisation successful!</h2><p>You can close this tab and return to the terminal.</p>")
		} else {
			fmt.Fprintf(w, "<h2>Authorisation failed</h2><p>%s</p>", result.err)
		}

		select {
		case results <- result:
		default:
		}
	})

	server := &http.Server{Addr: redirect.Host, Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case results <- callbackResult{err: err.Error()}:
			default:
			}
		}
	}()
	defer server.Close()

	logger.Infof("Opening browser for LinkedIn authorisation (listening on %s)...", redirect.Host)
	if err := openBrowser(consentURL); err != nil {
		logger.Warnf("Could not open a browser automatically; visit this URL yourself:\n%s", consentURL)
	}

	var result callbackResult
	select {
	case result = <-results:
	case <-time.After(callbackTimeout):
		return nil, fmt.Errorf("timed out waiting for the LinkedIn callback")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.err != "" {
		return nil, fmt.Errorf("linkedin authorisation failed: %s", result.err)
	}
	if result.state != state {
		return nil, fmt.Errorf("oauth state mismatch")
	}

	logger.Info("Received authorisation code, exchanging for token...")
	token, err := a.exchangeCode(ctx, result.code)
	if err != nil {
		return nil, err
	}
	if err := a.saveToken(token); err != nil {
		return nil, err
	}
	logger.Infof("LinkedIn authentication complete; token saved to %s", a.TokenPath)
	return token, nil
}

func (a *Authenticator) exchangeCode(ctx context.Context, code string) (*schemas.TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {a.ClientID},
		"client_secret": {a.ClientSecret},
		"redirect_uri":  {a.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewHTTPError(resp.StatusCode, string(body))
	}

	var token schemas.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, err
	}
	if token.ExpiresIn == 0 {
		token.ExpiresIn = defaultExpirySecs
	}
	token.ExpiresAt = time.Now().Unix() + token.ExpiresIn
	return &token, nil
}

func (a *Authenticator) saveToken(token *schemas.TokenResponse) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.TokenPath, data, 0600)
}

// LoadToken reads the persisted token. Returns nil when there is none or
// it has expired.
func LoadToken(tokenPath string) *schemas.TokenResponse {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil
	}
	var token schemas.TokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		return nil
	}
	if token.Expired() {
		return nil
	}
	return &token
}

// AccessToken resolves a usable access token: the configured one first,
// then the token file written by Authenticate.
func AccessToken(cfg *config.Config) (string, error) {
	li := cfg.ExternalClients.LinkedIn
	if li.AccessToken != "" {
		return li.AccessToken, nil
	}
	if token := LoadToken(li.TokenPath); token != nil {
		return token.AccessToken, nil
	}
	return "", fmt.Errorf("no valid LinkedIn token found; set the access token in config or run linkedin-auth")
}

func openBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	default:
		return exec.Command("xdg-open", target).Start()
	}
}
