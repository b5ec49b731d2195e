package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Arclight-Systems/casetrail/pkg/fault"
)

// LocalStore writes artifacts under root/org_id/filename. Downloads
// resolve through the deployment's authenticated download endpoint via a
// short-lived signed token; the store itself never serves bytes.
type LocalStore struct {
	root       string
	baseURL    string
	signingKey []byte
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root, baseURL string, signingKey []byte) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure root dir: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/"), signingKey: signingKey}, nil
}

// Put writes data to root/org_id/filename via temp-file rename.
func (s *LocalStore) Put(ctx context.Context, orgID, filename string, data []byte) (string, error) {
	dir := filepath.Join(s.root, orgID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure org dir: %w", err)
	}

	path := filepath.Join(dir, filename)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("storage: commit artifact: %w", err)
	}

	return filepath.ToSlash(filepath.Join(orgID, filename)), nil
}

// DownloadURL mints a signed token scoped to the stored path and embeds
// it in the download endpoint URL.
func (s *LocalStore) DownloadURL(ctx context.Context, storedPath string, ttl time.Duration) (string, error) {
	if len(s.signingKey) == 0 || s.baseURL == "" {
		return "", fault.New(fault.CodeConfiguration, "local downloads require a base URL and signing key")
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"path": storedPath,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("storage: sign download token: %w", err)
	}

	return s.baseURL + "/exports/download?token=" + url.QueryEscape(token), nil
}

// Resolve returns the absolute filesystem path for a stored path. Used by
// the download endpoint after token verification.
func (s *LocalStore) Resolve(storedPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(storedPath))
}

// VerifyToken validates a download token and returns the stored path it
// grants access to.
func (s *LocalStore) VerifyToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("storage: verify download token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("storage: unexpected token claims")
	}
	path, _ := claims["path"].(string)
	if path == "" {
		return "", fmt.Errorf("storage: token carries no path")
	}
	return path, nil
}
