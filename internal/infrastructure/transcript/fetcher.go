// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package transcript

import (
	"context"
	"sync"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// SourceFetcher dispatches a transcript source to the fetcher registered for its kind.
type SourceFetcher struct {
	fetchers map[models.TranscriptSourceKind]domain.TranscriptFetcher
	mu       sync.RWMutex
}

var _ domain.TranscriptFetcher = (*SourceFetcher)(nil)

// NewSourceFetcher creates an empty dispatcher.
func NewSourceFetcher() *SourceFetcher {
	return &SourceFetcher{
		fetchers: make(map[models.TranscriptSourceKind]domain.TranscriptFetcher),
	}
}

// Register sets the fetcher used for kind.
func (s *SourceFetcher) Register(kind models.TranscriptSourceKind, fetcher domain.TranscriptFetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchers[kind] = fetcher
}

// FetchTranscript implements domain.TranscriptFetcher.
func (s *SourceFetcher) FetchTranscript(ctx context.Context, source models.TranscriptSource) (string, error) {
	s.mu.RLock()
	fetcher, ok := s.fetchers[source.Kind]
	s.mu.RUnlock()

	if !ok {
		return "", domain.NewValidationError("no transcript fetcher for source kind " + string(source.Kind))
	}
	return fetcher.FetchTranscript(ctx, source)
}
