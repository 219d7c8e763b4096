// Package username picks an unused username for accounts provisioned
// through a social provider. It only reads from the user directory; the
// caller persists the result and relies on the directory's unique
// constraint as the final arbiter.
package username

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/samber/oops"

	"github.com/divyanshdhote/server-actions/internal/logger"
)

const (
	// FallbackBase is used when the profile carries neither an email nor a name.
	FallbackBase = "user"

	// DefaultMaxAttempts bounds the number of directory probes per resolution.
	DefaultMaxAttempts = 5000
)

// Error codes attached to resolver failures.
const (
	CodeDirectoryUnavailable = "USERNAME_DIRECTORY_UNAVAILABLE"
	CodeResolutionExhausted  = "USERNAME_RESOLUTION_EXHAUSTED"
)

var (
	// ErrDirectoryUnavailable is wrapped when an existence lookup fails.
	ErrDirectoryUnavailable = errors.New("user directory unavailable")
	// ErrResolutionExhausted is wrapped when every probe within the bound was taken.
	ErrResolutionExhausted = errors.New("username resolution exhausted")
)

// Directory answers whether a username is already held by a persisted user.
type Directory interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// Profile is the subset of an external identity used to derive a username.
// Empty strings mean the provider did not supply the field.
type Profile struct {
	Email       string
	DisplayName string
}

// Reservation is the outcome of a successful resolution.
type Reservation struct {
	Username        string
	DisplayUsername string
	Base            string
	Suffix          int // 0 when the bare base was free
	Attempts        int
}

// BaseCandidate derives the unsuffixed username: the email local part,
// else the display name verbatim, else FallbackBase.
func BaseCandidate(p Profile) string {
	if p.Email != "" {
		local, _, _ := strings.Cut(p.Email, "@")
		return local
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return FallbackBase
}

// Probe returns the string probed for the given suffix. Suffix 0 is the bare base.
func Probe(base string, suffix int) string {
	if suffix == 0 {
		return base
	}
	return base + strconv.Itoa(suffix)
}

// Resolver walks base, base1, base2, ... until the directory reports a free name.
type Resolver struct {
	directory   Directory
	maxAttempts int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// NewResolver creates a Resolver backed by the given directory.
func NewResolver(directory Directory, opts ...Option) *Resolver {
	r := &Resolver{
		directory:   directory,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxAttempts reports the configured probe bound.
func (r *Resolver) MaxAttempts() int {
	return r.maxAttempts
}

// Resolve derives the base candidate from the profile and returns the first
// free username starting from the bare base.
func (r *Resolver) Resolve(ctx context.Context, p Profile) (Reservation, error) {
	return r.ResolveFrom(ctx, BaseCandidate(p), 0)
}

// ResolveFrom probes Probe(base, startSuffix), Probe(base, startSuffix+1), ...
// Probes are issued one at a time; each depends on the previous answer.
func (r *Resolver) ResolveFrom(ctx context.Context, base string, startSuffix int) (Reservation, error) {
	if startSuffix < 0 {
		startSuffix = 0
	}

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		suffix := startSuffix + attempt - 1
		probe := Probe(base, suffix)

		taken, err := r.directory.Exists(ctx, probe)
		if err != nil {
			resolutionsTotal.WithLabelValues(outcomeDirectoryUnavailable).Inc()
			logger.Error("username lookup failed", map[string]any{
				"base":    base,
				"probe":   probe,
				"attempt": attempt,
				"error":   err.Error(),
			})
			return Reservation{}, oops.
				Code(CodeDirectoryUnavailable).
				With("base", base).
				With("probe", probe).
				With("attempt", attempt).
				Wrap(errors.Join(ErrDirectoryUnavailable, err))
		}
		if taken {
			continue
		}

		resolutionsTotal.WithLabelValues(outcomeResolved).Inc()
		probeAttempts.Observe(float64(attempt))
		if attempt > 1 {
			logger.Debug("username collision resolved", map[string]any{
				"base":     base,
				"username": probe,
				"attempts": attempt,
			})
		}

		return Reservation{
			Username:        probe,
			DisplayUsername: probe,
			Base:            base,
			Suffix:          suffix,
			Attempts:        attempt,
		}, nil
	}

	resolutionsTotal.WithLabelValues(outcomeExhausted).Inc()
	logger.Warn("username resolution exhausted", map[string]any{
		"base":         base,
		"start_suffix": startSuffix,
		"max_attempts": r.maxAttempts,
	})
	return Reservation{}, oops.
		Code(CodeResolutionExhausted).
		With("base", base).
		With("start_suffix", startSuffix).
		With("max_attempts", r.maxAttempts).
		Wrap(ErrResolutionExhausted)
}
