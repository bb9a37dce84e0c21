package versioning

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
)

// ProjectFingerprint returns a 13-character SHA-1 prefix of the absolute
// workdir path, a short identifier for a project that does not print
// the full path. No other package of this module calls it; status.json
// does not carry it. It is deterministic for a given workdir and carries
// no relation to any checkpoint's content hash.
func ProjectFingerprint(workdir string) (string, error) {
	abs, err := filepath.Abs(workdir)
	if err != nil {
		return "", err
	}
	h := sha1.Sum([]byte(abs))
	return hex.EncodeToString(h[:])[:13], nil
}
