package main

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/askme/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/askme/backend/internal/config"
	"github.com/spf13/viper"
)

func TestIssueSessionPrintsValidCookie(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.ApplyDefaults(viper.GetViper())
	viper.Set("session.signing_secret", "cli-secret")

	cmd := newIssueSessionCommand()
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetArgs([]string{"member-7", "--email", "member7@example.com"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("issue-session failed: %v", err)
	}

	firstLine, _, _ := strings.Cut(output.String(), "\n")
	name, token, found := strings.Cut(firstLine, "=")
	if !found || name != auth.DefaultSessionCookieName || token == "" {
		t.Fatalf("unexpected output %q", output.String())
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte("cli-secret"),
		CookieName:    auth.DefaultSessionCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	request, _ := http.NewRequest(http.MethodGet, "/", nil)
	request.AddCookie(&http.Cookie{Name: name, Value: token})
	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if claims.UserID != "member-7" || claims.UserEmail != "member7@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestFillDBRejectsInvalidRatio(t *testing.T) {
	for _, raw := range []string{"0", "many"} {
		cmd := newFillDBCommand()
		cmd.SetArgs([]string{raw})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "ratio must be a positive integer") {
			t.Fatalf("ratio %q: expected ratio error, got %v", raw, err)
		}
	}
}
