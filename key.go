package tfidf

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/bcongdon/tfidf/internal/pkg/mr"
)

// ErrInvalidKey is returned for intermediate keys that are not encoded CompositeKeys
var ErrInvalidKey = errors.New("invalid composite key")

const (
	keySeparator     = "\t"
	frequencyTag     = "*"
	documentEntryTag = "="

	keyCacheSize = 8192
)

// Marker is the second component of a CompositeKey. It is either the
// document frequency marker or a document entry; the zero Marker is the
// document frequency marker.
type Marker struct {
	docID   string
	isEntry bool
}

// DocumentFrequencyMarker marks records that count documents containing a term.
// It orders before every document entry.
var DocumentFrequencyMarker = Marker{}

// DocumentEntry marks records that count occurrences of a term in docID.
func DocumentEntry(docID string) Marker {
	return Marker{docID: docID, isEntry: true}
}

// IsDocumentFrequency reports whether m is the document frequency marker.
func (m Marker) IsDocumentFrequency() bool {
	return !m.isEntry
}

// DocID returns the document of an entry marker, or "" for the document frequency marker.
func (m Marker) DocID() string {
	return m.docID
}

func (m Marker) String() string {
	if m.IsDocumentFrequency() {
		return frequencyTag
	}
	return documentEntryTag + m.docID
}

// compareMarkers orders the document frequency marker first and entries by docID.
func compareMarkers(a, b Marker) int {
	switch {
	case a.isEntry != b.isEntry:
		if a.isEntry {
			return 1
		}
		return -1
	case !a.isEntry:
		return 0
	}
	return strings.Compare(a.docID, b.docID)
}

// CompositeKey is the intermediate key of the TF-IDF job.
type CompositeKey struct {
	Term   string
	Marker Marker
}

// Encode renders k as a shuffle key. Terms must not contain whitespace.
func (k CompositeKey) Encode() string {
	return k.Term + keySeparator + k.Marker.String()
}

func (k CompositeKey) String() string {
	return fmt.Sprintf("(%s, %s)", k.Term, k.Marker)
}

// DecodeKey parses a shuffle key produced by CompositeKey.Encode.
func DecodeKey(key string) (CompositeKey, error) {
	idx := strings.Index(key, keySeparator)
	if idx < 0 {
		return CompositeKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	term, marker := key[:idx], key[idx+len(keySeparator):]

	switch {
	case marker == frequencyTag:
		return CompositeKey{Term: term, Marker: DocumentFrequencyMarker}, nil
	case strings.HasPrefix(marker, documentEntryTag):
		return CompositeKey{Term: term, Marker: DocumentEntry(marker[len(documentEntryTag):])}, nil
	}
	return CompositeKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
}

// CompareKeys orders keys by term, then by marker.
func CompareKeys(a, b CompositeKey) int {
	if c := strings.Compare(a.Term, b.Term); c != 0 {
		return c
	}
	return compareMarkers(a.Marker, b.Marker)
}

// keyCache memoizes DecodeKey. Sorting a reduce bin decodes every key
// O(log n) times, so hits are frequent.
type keyCache struct {
	cache *lru.Cache
}

func newKeyCache(size int) *keyCache {
	cache, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &keyCache{cache: cache}
}

func (c *keyCache) decode(key string) (CompositeKey, error) {
	if cached, ok := c.cache.Get(key); ok {
		return cached.(CompositeKey), nil
	}
	decoded, err := DecodeKey(key)
	if err != nil {
		return CompositeKey{}, err
	}
	c.cache.Add(key, decoded)
	return decoded, nil
}

var decodedKeys = newKeyCache(keyCacheSize)

// SortCompare orders encoded keys by (term, marker). Keys that fail to
// decode fall back to byte order; the reducer reports them.
func SortCompare(a, b string) int {
	ka, errA := decodedKeys.decode(a)
	kb, errB := decodedKeys.decode(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return CompareKeys(ka, kb)
}

// GroupCompare compares encoded keys by term only, so that every marker of
// a term is reduced in a single group.
func GroupCompare(a, b string) int {
	ka, errA := decodedKeys.decode(a)
	kb, errB := decodedKeys.decode(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return strings.Compare(ka.Term, kb.Term)
}

// PartitionByTerm routes encoded keys to reduce bins by term only.
func PartitionByTerm(key string, numBins uint) uint {
	k, err := decodedKeys.decode(key)
	if err != nil {
		return mr.HashPartition(key, numBins)
	}
	return mr.HashPartition(k.Term, numBins)
}
