package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalBlobStore is a filesystem-backed stand-in for the object
// storage collaborator the room state machine treats as opaque: it
// mints short-lived signed upload URLs and deletes blobs by prefix or
// exact path. No object-storage SDK appears anywhere in the reference
// corpus this project was built against, so this boundary is plain
// standard library rather than a vendor client — see DESIGN.md.
type LocalBlobStore struct {
	root      string
	publicURL string
	secret    []byte
	ttl       time.Duration
}

// NewLocalBlobStore roots blobs under dir and signs presigned URLs
// with secret. publicURL is the externally reachable base (e.g.
// "https://host/blobs") prefixed to every minted URL and matched when
// deciding whether a URL belongs to this store at all.
func NewLocalBlobStore(dir, publicURL, secret string, ttl time.Duration) *LocalBlobStore {
	return &LocalBlobStore{root: dir, publicURL: strings.TrimRight(publicURL, "/"), secret: []byte(secret), ttl: ttl}
}

// PresignedUpload is the response to POST /upload/get-presigned-url.
type PresignedUpload struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	ExpiresAt int64  `json:"expiresAt"`
}

// MintUploadURL builds a signed upload target under
// room-<roomID>/<filename>, valid until ExpiresAt.
func (s *LocalBlobStore) MintUploadURL(roomID, filename string) PresignedUpload {
	key := fmt.Sprintf("room-%s/%s", roomID, filename)
	expires := time.Now().Add(s.ttl).Unix()
	sig := s.sign(key, expires)
	uploadURL := fmt.Sprintf("%s/blob/%s?exp=%d&sig=%s", s.publicURL, key, expires, sig)
	return PresignedUpload{
		UploadURL: uploadURL,
		PublicURL: fmt.Sprintf("%s/blob/%s", s.publicURL, key),
		ExpiresAt: expires,
	}
}

// VerifyUpload checks a PUT's signature and expiry before the HTTP
// handler writes the body to disk.
func (s *LocalBlobStore) VerifyUpload(key string, expires int64, sig string) error {
	if time.Now().Unix() > expires {
		return fmt.Errorf("upload URL expired")
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(key, expires))) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func (s *LocalBlobStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// Write stores body under key, used by the upload PUT handler after
// VerifyUpload succeeds.
func (s *LocalBlobStore) Write(key string, body []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

// DeletePrefix removes every blob whose key starts with prefix
// (room-<roomId>/), used on room cleanup.
func (s *LocalBlobStore) DeletePrefix(prefix string) error {
	dir := filepath.Join(s.root, filepath.FromSlash(prefix))
	err := os.RemoveAll(dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteOne removes a single blob by its public URL, used by
// deleteAudioSources. A URL that isn't rooted at s.publicURL is
// treated as not blob-owned and silently ignored — the caller is
// responsible for only calling this on URLs ownsBlobURL accepted.
func (s *LocalBlobStore) DeleteOne(url string) error {
	key := strings.TrimPrefix(url, s.publicURL+"/blob/")
	if key == url {
		return nil
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
