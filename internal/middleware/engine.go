package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewEngine returns a gin engine with panic recovery and request logging.
// Forwarding headers are honored only from trustedProxies; with none, the
// client IP is the socket address.
func NewEngine(trustedProxies []string, logger *zap.Logger) (*gin.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(trustedProxies) == 0 {
		trustedProxies = nil
	}
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(Logger(logger))
	return r, nil
}
