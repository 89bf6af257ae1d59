// Package provider adapts remote scoring providers: endpoint templates and
// the HTTP client that fetches their payloads.
package provider

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/apr/internal/domain/model"
)

// UserIDPlaceholder is replaced with the user id when building an endpoint.
const UserIDPlaceholder = "{user_id}"

// Template is a provider whose endpoint is a URL template.
type Template struct {
	name string
	raw  string
}

// NewTemplate creates a template provider. The template is validated lazily
// by Endpoint so a bad URL surfaces as a per-user error.
func NewTemplate(name, rawURL string) *Template {
	return &Template{name: name, raw: strings.TrimSpace(rawURL)}
}

// Name returns the provider label.
func (t *Template) Name() string { return t.name }

// Endpoint renders the template for a user.
func (t *Template) Endpoint(id model.UserID) (*url.URL, error) {
	raw := strings.ReplaceAll(t.raw, UserIDPlaceholder, strconv.Itoa(int(id)))
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadEndpoint, t.name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s: unsupported scheme %q", ErrBadEndpoint, t.name, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %s: missing host", ErrBadEndpoint, t.name)
	}
	return u, nil
}
