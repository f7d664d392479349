package playback

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Blob is a media payload published under a transient token.
type Blob struct {
	Data        []byte
	ContentType string
	CreatedAt   time.Time
	// Pinned blobs are owned by a session and only leave the store through Revoke.
	Pinned bool
}

// BlobStore hands out transient URLs for in-memory media. A revoked token is gone for good.
type BlobStore struct {
	mu     sync.RWMutex
	prefix string
	blobs  map[string]Blob
	now    func() time.Time
}

// NewBlobStore creates a store whose URLs are prefix + token.
func NewBlobStore(prefix string) *BlobStore {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &BlobStore{
		prefix: prefix,
		blobs:  make(map[string]Blob),
		now:    time.Now,
	}
}

// Put stores data and returns its token and URL. The blob is subject to Sweep.
func (s *BlobStore) Put(data []byte, contentType string) (token, url string) {
	return s.put(Blob{Data: data, ContentType: contentType})
}

// PutPinned stores data that Sweep never drops, such as a video attached to a live message.
// The owner must Revoke it.
func (s *BlobStore) PutPinned(data []byte, contentType string) (token, url string) {
	return s.put(Blob{Data: data, ContentType: contentType, Pinned: true})
}

func (s *BlobStore) put(b Blob) (token, url string) {
	token = uuid.NewString()
	s.mu.Lock()
	b.CreatedAt = s.now()
	s.blobs[token] = b
	s.mu.Unlock()
	return token, s.prefix + token
}

// Get returns the blob for token.
func (s *BlobStore) Get(token string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[token]
	return b, ok
}

// Revoke drops token; unknown tokens are ignored.
func (s *BlobStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.blobs, token)
	s.mu.Unlock()
}

// RevokeURL drops the blob behind a URL produced by Put.
func (s *BlobStore) RevokeURL(url string) {
	if token, ok := strings.CutPrefix(url, s.prefix); ok {
		s.Revoke(token)
	}
}

// Sweep revokes unpinned blobs older than maxAge and returns how many were dropped.
func (s *BlobStore) Sweep(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, b := range s.blobs {
		if !b.Pinned && b.CreatedAt.Before(cutoff) {
			delete(s.blobs, token)
			n++
		}
	}
	return n
}

// Len reports how many blobs are live.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
