// Package msalogin provides the game-account login collaborator seam: an
// Authenticator interface plus the persisted refresh-token store the real
// Microsoft device-code flow would refresh against.
package msalogin

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrAuthRefreshFailed is returned by Authenticator.Refresh when the
// stored refresh token is no longer valid; the caller should exit and
// instruct the operator to re-login.
var ErrAuthRefreshFailed = fmt.Errorf("msalogin: refresh token invalid")

// Identity is the (uuid, username, access token) triple the game login
// collaborator produces, consumed by the core as opaque strings.
type Identity struct {
	UUID        uuid.UUID
	Name        string
	AccessToken string
}

// Authenticator yields a game account identity, either by refreshing a
// stored token or by falling back to an offline profile.
type Authenticator interface {
	// Refresh exchanges a stored refresh token for a fresh Identity. It
	// returns ErrAuthRefreshFailed if the token has been revoked.
	Refresh(refreshToken string) (Identity, error)
}

// OfflineAuthenticator never contacts Microsoft; it always yields a fixed
// username with a synthesized offline-mode UUID and no access token. It
// exists so the bridge can run against servers in offline mode, or as a
// fallback when MSA_CLIENT_ID is not configured.
type OfflineAuthenticator struct {
	Username string
}

// Identity returns the offline profile. Offline-mode UUIDs are derived the
// same way vanilla servers derive them: a version-3 UUID of
// "OfflinePlayer:<name>".
func (a OfflineAuthenticator) Identity() Identity {
	sum := md5.Sum([]byte("OfflinePlayer:" + a.Username))
	sum[6] = (sum[6] & 0x0f) | 0x30 // version 3
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC 4122 variant
	return Identity{UUID: uuid.UUID(sum), Name: a.Username}
}

// AuthFile is the `{id, name, refresh_token}` shape persisted at
// .auth.json, rewritten after every successful refresh.
type AuthFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RefreshToken string `json:"refresh_token"`
}

const authFileName = ".auth.json"

// LoadAuthFile reads .auth.json next to the running binary. A missing
// file is not an error: it returns (AuthFile{}, false, nil).
func LoadAuthFile() (AuthFile, bool, error) {
	data, err := os.ReadFile(authFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return AuthFile{}, false, nil
		}
		return AuthFile{}, false, fmt.Errorf("msalogin: read auth file: %w", err)
	}

	var f AuthFile
	if err := json.Unmarshal(data, &f); err != nil {
		return AuthFile{}, false, fmt.Errorf("msalogin: parse auth file: %w", err)
	}
	return f, true, nil
}

// Save writes f to .auth.json, overwriting any previous contents.
func (f AuthFile) Save() error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("msalogin: marshal auth file: %w", err)
	}
	return os.WriteFile(authFilePath(), data, 0o600)
}

func authFilePath() string {
	exe, err := os.Executable()
	if err != nil {
		return authFileName
	}
	return filepath.Join(filepath.Dir(exe), authFileName)
}
