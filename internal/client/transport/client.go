// Package transport is the client's view of the sync server. The interface
// mirrors the protocol's two operations plus a reachability probe; the only
// production implementation speaks JSON over HTTP.
package transport

import (
	"context"
	"errors"

	"github.com/akarpov87/taskhive/internal/syncmodel"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

type Client interface {
	Push(ctx context.Context, req *syncmodel.PushRequest) (*syncmodel.PushResponse, error)
	Pull(ctx context.Context, req *syncmodel.PullRequest) (*syncmodel.PullResponse, error)
	Ping(ctx context.Context) error
	Close() error
}
