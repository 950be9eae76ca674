package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ComputeHash returns the SHA-256 of the record's JSON encoding with the
// Hash field cleared.
func (r *Record) ComputeHash() string {
	cp := *r
	cp.Hash = ""
	b, err := json.Marshal(&cp)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Seal sets Hash.
func (r *Record) Seal() {
	r.Hash = r.ComputeHash()
}

// Verify reports whether Hash matches the record's contents.
func (r *Record) Verify() bool {
	return r.Hash != "" && r.Hash == r.ComputeHash()
}
