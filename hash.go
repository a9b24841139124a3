package strata

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
)

// HashBytes returns the hex-encoded SHA-256 of b. This is the content
// hash used for document- and chunk-level deduplication: identical bytes
// always produce the same identifier.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashString returns the content hash of s.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashChunk returns the dedup identity of one chunk: the owning
// document's hash, the chunk position, and the text. Scoping the hash
// this way keeps repeated text (boilerplate paragraphs, overlap windows
// over repetitive prose) stored once per occurrence, so sorting by chunk
// index always reproduces the parser's full sequence. Only re-ingesting
// the same document yields colliding chunk hashes.
func HashChunk(documentHash string, index int, text string) string {
	return HashString(documentHash + "\x00" + strconv.Itoa(index) + "\x00" + text)
}

// HashReader streams r through SHA-256 and returns the content hash.
// Large files never need to be held in memory to be fingerprinted.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
