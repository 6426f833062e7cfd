package api

import "github.com/okian/leadtier/pkg/logger"

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxTopLimit caps the limit accepted by the top scores endpoint.
func WithMaxTopLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxTopLimit = n
		}
	}
}

// WithAcceptUnknownInteractions lets unrecognized interaction types through
// with the default increment instead of rejecting them.
func WithAcceptUnknownInteractions(accept bool) Option {
	return func(s *Server) {
		s.acceptUnknown = accept
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
