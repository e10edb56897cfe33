package queueaccess

import (
	"context"
	"errors"
	"fmt"

	"lectern/internal/api"
)

// Session represents an access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// DialAPI returns a client for the daemon at bind after confirming it
// answers. A daemon that is down yields api.ErrUnavailable.
func DialAPI(ctx context.Context, bind, token string) (*api.Client, error) {
	client := api.NewClient(bind, token)
	if _, err := client.Health(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// OpenWithFallback tries API-backed access first, then falls back to direct
// store access when the daemon is not running. Any other API error (a bad
// token, for instance) is returned as is.
func OpenWithFallback(
	dial func() (*api.Client, error),
	openStore func() (Access, func() error, error),
) (Session, error) {
	if dial != nil {
		client, err := dial()
		if err == nil {
			return Session{Access: NewAPIAccess(client)}, nil
		}
		if !errors.Is(err, api.ErrUnavailable) {
			return Session{}, err
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	access, closeFn, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{Access: access, close: closeFn}, nil
}
