package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/karanb192/reddit-mcp-buddy/internal/core/domain"
)

const credentialFileMode = os.FileMode(0o600)

// persistedCredential is the on-disk shape of the credential state. There is
// deliberately no password field: once exchanged for a token the password is
// never written anywhere.
type persistedCredential struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Username     string `json:"username,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	ExpiresAtMS  int64  `json:"expires_at_ms,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// SaveCredential writes the credential state to path with owner-only
// permissions. The mode is verified after the write and re-applied when the
// underlying filesystem did not honour it.
func SaveCredential(path string, cred domain.Credential) error {
	record := persistedCredential{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Username:     cred.Username,
		UserAgent:    cred.UserAgent,
		AccessToken:  cred.AccessToken,
		Scope:        cred.Scope,
	}
	if !cred.ExpiresAt.IsZero() {
		record.ExpiresAtMS = cred.ExpiresAt.UnixMilli()
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	if err := os.WriteFile(path, data, credentialFileMode); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat credential file: %w", err)
	}
	if info.Mode().Perm() != credentialFileMode {
		if err := os.Chmod(path, credentialFileMode); err != nil {
			return fmt.Errorf("restrict credential file mode: %w", err)
		}
	}

	return nil
}

// LoadCredential reads previously persisted credential state. A missing file
// surfaces as os.ErrNotExist so callers can treat it as a fresh start.
func LoadCredential(path string) (domain.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("read credential file: %w", err)
	}

	var record persistedCredential
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.Credential{}, fmt.Errorf("decode credential file: %w", err)
	}

	cred := domain.Credential{
		ClientID:     record.ClientID,
		ClientSecret: record.ClientSecret,
		Username:     record.Username,
		UserAgent:    record.UserAgent,
		AccessToken:  record.AccessToken,
		Scope:        record.Scope,
	}
	if record.ExpiresAtMS > 0 {
		cred.ExpiresAt = time.UnixMilli(record.ExpiresAtMS)
	}

	return cred, nil
}
