package inferbert

import (
	"github.com/axiomatic-ai/inferbert/options"
)

// NewGoSession creates a session that runs models with the pure Go backend.
// No shared libraries are required.
func NewGoSession(opts ...options.WithOption) (*Session, error) {
	return newSession("GO", opts...)
}

// NewXLASession creates a session that runs models through XLA via pjrt.
func NewXLASession(opts ...options.WithOption) (*Session, error) {
	return newSession("XLA", opts...)
}
