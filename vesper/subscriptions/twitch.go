package subscriptions

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/errs"
)

const (
	twitchTokenURL = "https://id.twitch.tv/oauth2/token"
	twitchAPIBase  = "https://api.twitch.tv/helix"

	// tokenSlack renews the app token this long before it expires.
	tokenSlack = 60 * time.Second

	userCacheSize = 256
)

var twitchLoginRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,25}$`)

// TwitchSource polls live streams through the Helix API with a cached
// client-credentials token.
type TwitchSource struct {
	fetcher      *Fetcher
	clientID     string
	clientSecret string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	users *lru.Cache // login -> user id
	now   func() time.Time
}

var _ Source = (*TwitchSource)(nil)

func NewTwitchSource(fetcher *Fetcher, clientID, clientSecret string) *TwitchSource {
	cache, _ := lru.New(userCacheSize)
	return &TwitchSource{
		fetcher:      fetcher,
		clientID:     clientID,
		clientSecret: clientSecret,
		users:        cache,
		now:          time.Now,
	}
}

// SetNow overrides the clock for tests.
func (s *TwitchSource) SetNow(now func() time.Time) { s.now = now }

func (s *TwitchSource) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	form := url.Values{
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	if err := s.fetcher.PostForm(ctx, twitchTokenURL, form, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errs.New(errs.Upstream, "empty access token")
	}
	s.token = resp.AccessToken
	s.tokenExpiry = s.now().Add(time.Duration(resp.ExpiresIn)*time.Second - tokenSlack)
	return s.token, nil
}

func (s *TwitchSource) apiHeaders(ctx context.Context) (map[string]string, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Client-Id":     s.clientID,
		"Authorization": "Bearer " + token,
	}, nil
}

// Normalize extracts a login from a twitch.tv URL or accepts a bare
// username, then confirms the user exists.
func (s *TwitchSource) Normalize(ctx context.Context, identifier string) (string, error) {
	login := strings.TrimSpace(identifier)
	login = strings.TrimSuffix(login, "/")
	if i := strings.LastIndexByte(login, '/'); i >= 0 {
		login = login[i+1:]
	}
	login = strings.ToLower(login)
	if !twitchLoginRe.MatchString(login) {
		return "", errs.Newf(errs.InvalidArgument, "%q is not a valid stream name", identifier)
	}
	if _, err := s.userID(ctx, login); err != nil {
		return "", err
	}
	return login, nil
}

func (s *TwitchSource) userID(ctx context.Context, login string) (string, error) {
	if v, ok := s.users.Get(login); ok {
		return v.(string), nil
	}
	headers, err := s.apiHeaders(ctx)
	if err != nil {
		return "", err
	}
	var resp struct {
		Data []struct {
			ID              string `json:"id"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	if err := s.fetcher.JSON(ctx, twitchAPIBase+"/users?login="+url.QueryEscape(login), headers, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", errs.Newf(errs.NotFound, "no stream named %q", login)
	}
	s.users.Add(login, resp.Data[0].ID)
	return resp.Data[0].ID, nil
}

// Thumbnail returns the streamer's profile image.
func (s *TwitchSource) Thumbnail(ctx context.Context, login string) (string, error) {
	headers, err := s.apiHeaders(ctx)
	if err != nil {
		return "", err
	}
	var resp struct {
		Data []struct {
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	if err := s.fetcher.JSON(ctx, twitchAPIBase+"/users?login="+url.QueryEscape(login), headers, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", nil
	}
	return resp.Data[0].ProfileImageURL, nil
}

// Latest reports the current live stream, or nil while offline. The
// stream id de-duplicates: one post per broadcast, not per sweep.
func (s *TwitchSource) Latest(ctx context.Context, sub *models.Subscription) (*Item, error) {
	userID, err := s.userID(ctx, sub.NormalizedID)
	if err != nil {
		return nil, err
	}
	headers, err := s.apiHeaders(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			UserName string `json:"user_name"`
		} `json:"data"`
	}
	if err := s.fetcher.JSON(ctx, twitchAPIBase+"/streams?user_id="+url.QueryEscape(userID), headers, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	st := resp.Data[0]
	return &Item{
		ID:      st.ID,
		Title:   st.Title,
		Channel: st.UserName,
		URL:     "https://www.twitch.tv/" + sub.NormalizedID,
	}, nil
}
