package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Credentials holds an OAuth client and an already-issued token.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Token is the token JSON; it wins over TokenFile.
	Token     string
	TokenFile string
}

// storedToken accepts both the oauth2 JSON shape and the one written by the
// Node googleapis client, which carries expiry as epoch milliseconds.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
	ExpiryDate   int64     `json:"expiry_date"`
}

// ParseToken decodes a stored OAuth token.
func ParseToken(raw []byte) (*oauth2.Token, error) {
	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode drive token: %w", err)
	}
	if st.AccessToken == "" && st.RefreshToken == "" {
		return nil, fmt.Errorf("drive token has neither access_token nor refresh_token")
	}

	tok := &oauth2.Token{
		AccessToken:  st.AccessToken,
		TokenType:    st.TokenType,
		RefreshToken: st.RefreshToken,
		Expiry:       st.Expiry,
	}
	if tok.Expiry.IsZero() && st.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(st.ExpiryDate)
	}
	return tok, nil
}

func (c Credentials) token() (*oauth2.Token, error) {
	if strings.TrimSpace(c.Token) != "" {
		return ParseToken([]byte(c.Token))
	}
	if c.TokenFile == "" {
		return nil, fmt.Errorf("no drive token configured (set remote.drive.token or remote.drive.token_file)")
	}
	raw, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read drive token file: %w", err)
	}
	return ParseToken(raw)
}

// NewService builds an authenticated Drive client. Refreshed access tokens
// live only in memory.
func NewService(ctx context.Context, c Credentials) (*gdrive.Service, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}
	conf := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{gdrive.DriveFileScope, gdrive.DriveScope},
		Endpoint:     google.Endpoint,
	}
	svc, err := gdrive.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return svc, nil
}
