package directory

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"golang.org/x/oauth2"

	"github.com/jibinmichael/paperforslack/internal/observability"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

// slackV2Endpoint is Slack's OAuth v2 endpoint pair. The x/oauth2 slack
// package still points at the v1 flow, which granular bot scopes do not
// support.
var slackV2Endpoint = oauth2.Endpoint{
	AuthURL:  "https://slack.com/oauth/v2/authorize",
	TokenURL: "https://slack.com/api/oauth.v2.access",
}

// defaultScopes is the permission set the bot requests on install.
var defaultScopes = []string{
	"app_mentions:read",
	"channels:history",
	"channels:read",
	"chat:write",
	"canvases:read",
	"canvases:write",
	"users:read",
}

// stateTTL bounds how long an issued OAuth state stays redeemable.
const stateTTL = 10 * time.Minute

// OAuthConfig configures the multi-workspace install flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scopes overrides defaultScopes when set.
	Scopes []string
}

// OAuthHandler serves the install redirect and the code-exchange callback.
type OAuthHandler struct {
	oauth      oauth2.Config
	dir        *Directory
	logger     *observability.Logger
	httpClient *http.Client

	mu     sync.Mutex
	states map[string]time.Time
}

// NewOAuthHandler creates the handler.
func NewOAuthHandler(cfg OAuthConfig, dir *Directory, logger *observability.Logger) *OAuthHandler {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return &OAuthHandler{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     slackV2Endpoint,
			Scopes:       scopes,
		},
		dir:        dir,
		logger:     logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		states:     make(map[string]time.Time),
	}
}

// HandleInstall redirects the browser into Slack's consent screen with a
// fresh CSRF state.
func (h *OAuthHandler) HandleInstall(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	h.mu.Lock()
	now := time.Now()
	for s, issued := range h.states {
		if now.Sub(issued) > stateTTL {
			delete(h.states, s)
		}
	}
	h.states[state] = now
	h.mu.Unlock()

	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback exchanges the code and records the installation.
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state := r.URL.Query().Get("state")
	h.mu.Lock()
	issued, known := h.states[state]
	delete(h.states, state)
	h.mu.Unlock()
	if !known || time.Since(issued) > stateTTL {
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	resp, err := slack.GetOAuthV2ResponseContext(ctx, h.httpClient,
		h.oauth.ClientID, h.oauth.ClientSecret, code, h.oauth.RedirectURL)
	if err != nil {
		h.logger.Error(ctx, "oauth exchange failed", "error", err)
		http.Error(w, "installation failed", http.StatusBadGateway)
		return
	}

	inst := models.Installation{
		Mode:        models.InstallModeMulti,
		TeamID:      resp.Team.ID,
		TeamName:    resp.Team.Name,
		BotToken:    resp.AccessToken,
		BotUserID:   resp.BotUserID,
		Scopes:      h.oauth.Scopes,
		InstalledAt: time.Now(),
	}
	if err := h.dir.Install(ctx, inst); err != nil {
		h.logger.Error(ctx, "failed to record installation", "team_id", inst.TeamID, "error", err)
		http.Error(w, "installation failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info(ctx, "workspace installed", "team_id", inst.TeamID, "team_name", inst.TeamName)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h2>Paper is installed in %s 🎉</h2><p>Invite the bot to a channel to get a living summary canvas.</p></body></html>", inst.TeamName)
}
