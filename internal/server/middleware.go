package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	"github.com/smallbiznis/fieldops/internal/auth"
	obscontext "github.com/smallbiznis/fieldops/internal/observability/context"
	"github.com/smallbiznis/fieldops/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextAgentKey = "agent"

	rateLimitReasonCaller = "caller-rate"
)

// AuthRequired verifies the bearer token and attaches the principal to the
// request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.tokens.Verify(parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := auth.WithPrincipal(c.Request.Context(), principal)
		ctx = obscontext.WithActor(ctx, string(principal.Role), principal.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), string(principal.Role), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeScoped checks the self-scoped permission for agents and resolves
// their profile; every other role is checked against the unscoped one.
func (s *Server) authorizeScoped(object, action, selfObject, selfAction string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if principal.Role != auth.RoleAgent {
			s.authorize(object, action)(c)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), string(principal.Role), selfObject, selfAction); err != nil {
			AbortWithError(c, err)
			return
		}
		s.RequireAgent()(c)
	}
}

// RequireAgent resolves the caller's agent profile. Callers without one are
// forbidden.
func (s *Server) RequireAgent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.resolveAgent(c); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) resolveAgent(c *gin.Context) (*agentdomain.Agent, error) {
	if agent, ok := agentFromContext(c); ok {
		return agent, nil
	}
	principal, ok := auth.PrincipalFromContext(c.Request.Context())
	if !ok {
		return nil, ErrUnauthorized
	}
	agent, err := s.agentSvc.GetByUserID(c.Request.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, agentdomain.ErrNotFound) || errors.Is(err, agentdomain.ErrInvalidUserID) {
			return nil, ErrAgentProfileAbsent
		}
		return nil, err
	}
	c.Set(contextAgentKey, agent)
	return agent, nil
}

// RateLimit applies the per-caller token bucket. Limiter failures fail open.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		principal, _ := auth.PrincipalFromContext(ctx)
		endpoint := normalizeRateLimitEndpoint(c)
		role := string(principal.Role)

		res, err := s.limiter.Allow(ctx, principal.UserID)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			logger.FromContext(ctx).Warn("rate limit exceeded",
				zap.String("reason", rateLimitReasonCaller),
				zap.String("endpoint", endpoint),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, role, endpoint, rateLimitReasonCaller)

			retry := int(res.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, role, endpoint)
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	route := strings.TrimSpace(c.FullPath())
	if route == "" {
		route = "unmatched"
	}
	return c.Request.Method + " " + route
}

func principalFromContext(c *gin.Context) (auth.Principal, bool) {
	return auth.PrincipalFromContext(c.Request.Context())
}

func agentFromContext(c *gin.Context) (*agentdomain.Agent, bool) {
	value, ok := c.Get(contextAgentKey)
	if !ok {
		return nil, false
	}
	agent, ok := value.(*agentdomain.Agent)
	return agent, ok && agent != nil
}
