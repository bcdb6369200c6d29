package application

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
	"github.com/ericfisherdev/lifesync/internal/vault"
)

var (
	steamKeyPattern    = regexp.MustCompile(`^[0-9A-Fa-f]{32}$`)
	steamUserIDPattern = regexp.MustCompile(`^765\d{14}$`)
	classicPATPattern  = regexp.MustCompile(`^[0-9a-f]{40}$`)
)

// ValidationResult is the verdict of one credential validation pass.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Detail string `json:"detail,omitempty"`
}

// Validator checks credentials with cheap static rules first, then one
// adapter probe. It never fetches data.
type Validator struct {
	creds   driven.CredentialStore
	clients map[model.Platform]driven.PlatformClient
	vault   *vault.Vault
}

// NewValidator creates a Validator.
func NewValidator(creds driven.CredentialStore, clients map[model.Platform]driven.PlatformClient, v *vault.Vault) *Validator {
	return &Validator{creds: creds, clients: clients, vault: v}
}

// Validate checks the credential and persists the verdict. A static-rule
// failure or an auth rejection marks the credential invalid; a rate-limited
// or unreachable probe is inconclusive and leaves the stored verdict alone.
func (v *Validator) Validate(ctx context.Context, credentialID string) (*ValidationResult, error) {
	cred, err := v.creds.GetByID(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, &model.CredentialError{CredentialID: credentialID, Reason: "not found"}
	}

	client, ok := v.clients[cred.Platform]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %s", cred.Platform)
	}

	secret, err := v.vault.Decrypt(cred.Value)
	if err != nil {
		detail := fmt.Sprintf("credential unusable: %v", err)
		return v.verdict(ctx, credentialID, false, detail)
	}
	plain := *cred
	plain.Value = secret

	if detail := staticCheck(plain); detail != "" {
		return v.verdict(ctx, credentialID, false, detail)
	}

	probe := client.Probe(ctx, plain)
	switch probe.Status {
	case driven.ProbeOk:
		return v.verdict(ctx, credentialID, true, "")
	case driven.ProbeAuthRejected:
		return v.verdict(ctx, credentialID, false, probe.Detail)
	default:
		// Rate limited or unreachable says nothing about the secret itself.
		detail := probe.Detail
		if detail == "" {
			detail = fmt.Sprintf("probe inconclusive: %s", probe.Status)
		}
		return &ValidationResult{Valid: cred.IsValid, Detail: detail}, nil
	}
}

// verdict persists and returns the validation outcome.
func (v *Validator) verdict(ctx context.Context, credentialID string, valid bool, detail string) (*ValidationResult, error) {
	if err := v.creds.MarkValid(ctx, credentialID, valid, detail); err != nil {
		return nil, fmt.Errorf("store validation verdict: %w", err)
	}
	if valid {
		if err := v.creds.MarkUsed(ctx, credentialID, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("mark credential used: %w", err)
		}
	}
	return &ValidationResult{Valid: valid, Detail: detail}, nil
}

// staticCheck applies per-platform shape rules to the decrypted credential.
// It returns "" when the credential passes, otherwise a rejection detail.
func staticCheck(cred model.Credential) string {
	switch cred.Platform {
	case model.PlatformSteam:
		if !steamKeyPattern.MatchString(cred.Value) {
			return "steam api key must be 32 hex characters"
		}
		if !steamUserIDPattern.MatchString(cred.Meta("steamUserId")) {
			return "steamUserId metadata must be a 17-digit id starting with 765"
		}
	case model.PlatformGitHub:
		if !strings.HasPrefix(cred.Value, "ghp_") &&
			!strings.HasPrefix(cred.Value, "github_pat_") &&
			!classicPATPattern.MatchString(cred.Value) {
			return "github token must be a personal access token"
		}
	case model.PlatformHoYoverse:
		hasToken := strings.Contains(cred.Value, "ltoken")
		hasUID := strings.Contains(cred.Value, "ltuid")
		if !hasToken || !hasUID {
			return "hoyoverse cookie must contain both ltoken and ltuid"
		}
	case model.PlatformBilibili:
		if !strings.Contains(cred.Value, "SESSDATA") {
			return "bilibili cookie must contain SESSDATA"
		}
	case model.PlatformDouban:
		if !strings.Contains(cred.Value, "dbcl2") {
			return "douban cookie must contain dbcl2"
		}
	case model.PlatformJellyfin:
		raw := cred.Meta("jellyfinUrl")
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "jellyfinUrl metadata must be an http(s) URL"
		}
		if cred.Meta("jellyfinUserId") == "" {
			return "jellyfinUserId metadata is required"
		}
		if cred.Value == "" {
			return "jellyfin access token is required"
		}
	}
	return ""
}
