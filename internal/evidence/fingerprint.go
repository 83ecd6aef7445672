package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/google/uuid"

	"secq/internal/logging"
)

// Fingerprint returns the hex SHA-256 of the full file content. An
// unreadable file gets a random value so it never matches a cache entry.
func Fingerprint(path string) string {
	f, err := os.Open(path)
	if err != nil {
		logging.CacheWarn("cannot fingerprint %s: %v", path, err)
		return "unreadable-" + uuid.NewString()
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		logging.CacheWarn("cannot fingerprint %s: %v", path, err)
		return "unreadable-" + uuid.NewString()
	}
	return hex.EncodeToString(h.Sum(nil))
}
