// Package storage holds error categories shared by the graph, document and
// file collaborators. The core never retries a failed collaborator call; it
// wraps the failure as ErrUnavailable and surfaces it to the caller.
package storage

import "errors"

var ErrUnavailable = errors.New("storage unavailable")
