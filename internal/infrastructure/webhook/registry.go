// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package webhook

import (
	"sync"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// Registry implements domain.WebhookAuthenticatorRegistry
type Registry struct {
	authenticators map[models.Platform]domain.WebhookAuthenticator
	mu             sync.RWMutex
}

var _ domain.WebhookAuthenticatorRegistry = (*Registry)(nil)

// NewRegistry creates a new webhook authenticator registry
func NewRegistry() *Registry {
	return &Registry{
		authenticators: make(map[models.Platform]domain.WebhookAuthenticator),
	}
}

// GetAuthenticator returns the authenticator for the specified platform
func (r *Registry) GetAuthenticator(platform models.Platform) (domain.WebhookAuthenticator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticator, exists := r.authenticators[platform]
	if !exists {
		return nil, domain.NewNotFoundError("webhook authenticator for platform " + string(platform) + " not found")
	}

	return authenticator, nil
}

// RegisterAuthenticator registers the authenticator of a platform
func (r *Registry) RegisterAuthenticator(platform models.Platform, authenticator domain.WebhookAuthenticator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.authenticators[platform] = authenticator
}
