package fetch

import (
	stderrors "errors"

	crerr "github.com/cockroachdb/errors"
)

// ErrExhausted is returned once every configured attempt against a URL has
// failed. It wraps the last attempt's error.
var ErrExhausted = crerr.New("fetch attempts exhausted")

// errTransient marks per-attempt failures that stay inside the retry loop.
var errTransient = crerr.New("transient fetch failure")

func IsExhausted(err error) bool {
	return stderrors.Is(err, ErrExhausted)
}
