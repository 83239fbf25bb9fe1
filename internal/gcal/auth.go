package gcal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"teesync/internal/config"
	appLog "teesync/internal/log"
)

// AuthOptions locate the OAuth client secrets and the cached user token.
type AuthOptions struct {
	CredentialsFile string
	TokenFile       string

	// Prompt receives the consent URL and In supplies the pasted code when no
	// usable token is cached. Both default to the process's stdio.
	Prompt io.Writer
	In     io.Reader
}

// HTTPClient returns an authorized client for the Calendar API. A missing
// token triggers the installed-app consent flow once; refreshed tokens are
// written back to TokenFile.
func HTTPClient(ctx context.Context, opts AuthOptions) (*http.Client, error) {
	secret, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("gcal: read credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(secret, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("gcal: parse credentials %s: %w", opts.CredentialsFile, err)
	}

	tok, err := loadToken(opts.TokenFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			appLog.Error("gcal token unreadable; requesting a new one", err, "path", opts.TokenFile)
		}
		tok, err = exchangeFromConsole(ctx, conf, opts)
		if err != nil {
			return nil, err
		}
		if err := saveToken(opts.TokenFile, tok); err != nil {
			return nil, err
		}
	}

	ts := &savingTokenSource{
		base: conf.TokenSource(ctx, tok),
		path: opts.TokenFile,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, ts)), nil
}

func exchangeFromConsole(ctx context.Context, conf *oauth2.Config, opts AuthOptions) (*oauth2.Token, error) {
	prompt := opts.Prompt
	if prompt == nil {
		prompt = os.Stdout
	}
	in := opts.In
	if in == nil {
		in = os.Stdin
	}

	url := conf.AuthCodeURL("teesync", oauth2.AccessTypeOffline)
	fmt.Fprintf(prompt, "Open the following link, authorize calendar access and paste the code:\n%s\n> ", url)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("gcal: read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("gcal: empty authorization code")
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("gcal: exchange authorization code: %w", err)
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file holds no token")
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(path, data, ".teesync-token-*.tmp"); err != nil {
		return fmt.Errorf("gcal: save token: %w", err)
	}
	return nil
}

// savingTokenSource persists every newly issued token.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			appLog.Error("gcal refreshed token not saved", err, "path", s.path)
		}
	}
	return tok, nil
}
