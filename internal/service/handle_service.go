package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/yourusername/idlink-api/internal/pkg/errors"
)

const (
	// fallbackBaseHandle is used when the profile yields nothing usable.
	fallbackBaseHandle = "link-user"

	// maxBaseHandleLen bounds the sanitized base before the domain suffix.
	maxBaseHandleLen = 20

	// maxHandleProbes bounds the collision loop; past it we give up on a
	// readable handle and fall back to a time-based one.
	maxHandleProbes = 1000
)

// HandleService derives human-readable handles from external profile data
// and resolves collisions by probing. Allocation is not transactional: a
// handle judged free here can still be claimed by a concurrent request
// before the saga registers it, which then fails at account registration.
type HandleService struct {
	registry     AccountRegistry
	handleDomain string
}

func NewHandleService(registry AccountRegistry, handleDomain string) (*HandleService, error) {
	if registry == nil {
		return nil, fmt.Errorf("account registry is required")
	}
	if handleDomain == "" || !strings.HasPrefix(handleDomain, ".") {
		return nil, fmt.Errorf("handle domain must start with a dot, got %q", handleDomain)
	}
	return &HandleService{registry: registry, handleDomain: handleDomain}, nil
}

// DeriveBaseHandle extracts a base from the profile properties: the email
// local-part if present, else a first+last name slug, else a fixed literal.
func (s *HandleService) DeriveBaseHandle(props map[string]interface{}) string {
	if props == nil {
		return fallbackBaseHandle
	}
	if email := stringProp(props, "EMAIL", "email"); strings.Contains(email, "@") {
		if local := strings.SplitN(email, "@", 2)[0]; local != "" {
			return local
		}
	}
	first := stringProp(props, "FIRST", "first")
	last := stringProp(props, "LAST", "last")
	parts := make([]string, 0, 2)
	if first != "" {
		parts = append(parts, first)
	}
	if last != "" {
		parts = append(parts, last)
	}
	if name := strings.Join(parts, "-"); name != "" {
		return name
	}
	return fallbackBaseHandle
}

func stringProp(props map[string]interface{}, names ...string) string {
	for _, name := range names {
		if v, ok := props[name].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Allocate appends the handle domain to the sanitized base and probes
// base, base1, base2, ... until a syntactically valid, unclaimed handle is
// found. Exhaustion falls back to a time-based literal so allocation always
// terminates.
func (s *HandleService) Allocate(ctx context.Context, base string) (string, error) {
	norm := sanitizeBaseHandle(base)

	for i := 0; i < maxHandleProbes; i++ {
		candidate := norm
		if i > 0 {
			candidate = norm + strconv.Itoa(i)
		}
		candidate += s.handleDomain

		normalized, err := s.registry.NormalizeAndValidateHandle(candidate)
		if err != nil {
			// Malformed or reserved; try the next suffix.
			continue
		}
		_, err = s.registry.GetAccountByHandle(ctx, normalized)
		if errors.Is(err, apperrors.ErrNotFound) {
			return normalized, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to probe handle %q: %w", normalized, err)
		}
	}

	fallback := "link-" + strconv.FormatInt(time.Now().UnixMilli(), 36) + s.handleDomain
	return fallback, nil
}

// sanitizeBaseHandle restricts the base to lowercase alphanumerics and
// hyphens, collapses hyphen runs, trims edge hyphens and bounds the length.
func sanitizeBaseHandle(base string) string {
	base = strings.ToLower(strings.TrimSpace(base))
	var b strings.Builder
	lastHyphen := false
	for _, r := range base {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	norm := strings.Trim(b.String(), "-")
	if len(norm) > maxBaseHandleLen {
		norm = strings.Trim(norm[:maxBaseHandleLen], "-")
	}
	if norm == "" {
		norm = fallbackBaseHandle
	}
	return norm
}
