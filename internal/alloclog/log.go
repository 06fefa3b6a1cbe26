// Package alloclog holds the single shared logger used by the tree and
// allocator packages to trace split, collapse and invalidation events.
package alloclog

import "github.com/sirupsen/logrus"

// Logger is silent by default (logrus.New's default level is Info and
// nothing below that is emitted here) — callers that want a trace of
// tree internals raise the level themselves, e.g.
// alloclog.Logger.SetLevel(logrus.DebugLevel).
var Logger = logrus.New()
