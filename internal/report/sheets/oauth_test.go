package sheets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testClientJSON = `{"installed":{"client_id":"id","client_secret":"secret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %v, want 0600", perm)
	}
	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.RefreshToken != "r" || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("loaded token = %+v", got)
	}
}

func TestOAuthConfig(t *testing.T) {
	cfg, err := OAuthConfig([]byte(testClientJSON))
	if err != nil {
		t.Fatalf("OAuthConfig: %v", err)
	}
	if cfg.ClientID != "id" || len(cfg.Scopes) != 1 {
		t.Errorf("config = %+v", cfg)
	}
	if _, err := OAuthConfig([]byte("{}")); err == nil {
		t.Error("expected error for empty client secret")
	}
}

func TestNew_OAuthMissingToken(t *testing.T) {
	_, err := New(context.Background(), Config{
		SpreadsheetID:   "sheet",
		OAuthClientJSON: []byte(testClientJSON),
		OAuthTokenFile:  filepath.Join(t.TempDir(), "missing.json"),
	})
	if err == nil || !strings.Contains(err.Error(), "read oauth token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestNew_OAuthToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := SaveToken(path, &oauth2.Token{AccessToken: "a", TokenType: "Bearer"}); err != nil {
		t.Fatal(err)
	}
	exp, err := New(context.Background(), Config{
		SpreadsheetID:   "sheet",
		OAuthClientJSON: []byte(testClientJSON),
		OAuthTokenFile:  path,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if exp.sheetName != DefaultSheetName {
		t.Errorf("sheet name = %q", exp.sheetName)
	}
}
