package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	agentdomain "github.com/smallbiznis/fieldops/internal/agent/domain"
	approvaldomain "github.com/smallbiznis/fieldops/internal/approval/domain"
	assignmentdomain "github.com/smallbiznis/fieldops/internal/assignment/domain"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"github.com/smallbiznis/fieldops/internal/auth"
	"github.com/smallbiznis/fieldops/internal/authorization"
	"github.com/smallbiznis/fieldops/internal/config"
	meterdomain "github.com/smallbiznis/fieldops/internal/meter/domain"
	"github.com/smallbiznis/fieldops/internal/observability"
	obsmiddleware "github.com/smallbiznis/fieldops/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fieldops/internal/observability/metrics"
	obstracing "github.com/smallbiznis/fieldops/internal/observability/tracing"
	"github.com/smallbiznis/fieldops/internal/ratelimit"
	readingdomain "github.com/smallbiznis/fieldops/internal/reading/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server started", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	tokens        *auth.TokenManager
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	meterSvc      meterdomain.Service
	agentSvc      agentdomain.Service
	assignmentSvc assignmentdomain.Service
	approvalSvc   approvaldomain.Service
	readingSvc    readingdomain.Service
	limiter       *ratelimit.Limiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Tokens        *auth.TokenManager
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	MeterSvc      meterdomain.Service
	AgentSvc      agentdomain.Service
	AssignmentSvc assignmentdomain.Service
	ApprovalSvc   approvaldomain.Service
	ReadingSvc    readingdomain.Service
	Limiter       *ratelimit.Limiter  `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           log.Named("http.server"),
		tokens:        p.Tokens,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		meterSvc:      p.MeterSvc,
		agentSvc:      p.AgentSvc,
		assignmentSvc: p.AssignmentSvc,
		approvalSvc:   p.ApprovalSvc,
		readingSvc:    p.ReadingSvc,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(s.AuthRequired())
	api.Use(s.RateLimit())

	// -------- Meters --------
	api.POST("/meters", s.authorize(authorization.ObjectMeter, authorization.ActionMeterCreate), s.CreateMeter)
	api.GET("/meters", s.authorize(authorization.ObjectMeter, authorization.ActionMeterList), s.ListMeters)
	api.GET("/meters/unassigned", s.authorize(authorization.ObjectMeter, authorization.ActionMeterList), s.ListUnassignedMeters)
	api.GET("/meters/:id", s.authorize(authorization.ObjectMeter, authorization.ActionMeterView), s.GetMeterByID)
	api.PATCH("/meters/:id", s.authorize(authorization.ObjectMeter, authorization.ActionMeterUpdate), s.UpdateMeter)
	api.DELETE("/meters/:id", s.authorize(authorization.ObjectMeter, authorization.ActionMeterDelete), s.DeleteMeter)
	api.GET("/meters/:id/readings", s.authorize(authorization.ObjectReading, authorization.ActionReadingView), s.ListMeterReadings)

	// -------- Agents --------
	api.POST("/agents", s.authorize(authorization.ObjectAgent, authorization.ActionAgentCreate), s.CreateAgent)
	api.GET("/agents", s.authorize(authorization.ObjectAgent, authorization.ActionAgentList), s.ListAgents)
	api.GET("/agents/available", s.authorize(authorization.ObjectAgent, authorization.ActionAgentList), s.ListAvailableAgents)
	api.GET("/agents/me", s.authorize(authorization.ObjectAgentSelf, authorization.ActionAgentSelfView), s.RequireAgent(), s.GetOwnAgent)
	api.PATCH("/agents/me/status", s.authorize(authorization.ObjectAgentSelf, authorization.ActionAgentSelfUpdate), s.RequireAgent(), s.UpdateOwnAgentStatus)
	api.PATCH("/agents/me/location", s.authorize(authorization.ObjectAgentSelf, authorization.ActionAgentSelfUpdate), s.RequireAgent(), s.UpdateOwnAgentLocation)
	api.GET("/agents/:id", s.authorize(authorization.ObjectAgent, authorization.ActionAgentView), s.GetAgentByID)
	api.PATCH("/agents/:id", s.authorize(authorization.ObjectAgent, authorization.ActionAgentUpdate), s.UpdateAgent)
	api.GET("/agents/:id/stats", s.authorize(authorization.ObjectAgent, authorization.ActionAgentStats), s.GetAgentStats)

	// -------- Assignments --------
	api.POST("/assignments", s.authorize(authorization.ObjectAssignment, authorization.ActionAssignmentCreate), s.CreateAssignment)
	api.POST("/assignments/bulk", s.authorize(authorization.ObjectAssignment, authorization.ActionAssignmentCreate), s.BulkAssign)
	api.GET("/assignments", s.authorize(authorization.ObjectAssignment, authorization.ActionAssignmentList), s.ListAssignments)
	api.GET("/assignments/me", s.authorize(authorization.ObjectAssignmentSelf, authorization.ActionAssignmentSelfView), s.RequireAgent(), s.ListOwnAssignments)
	api.GET("/assignments/:id",
		s.authorizeScoped(
			authorization.ObjectAssignment, authorization.ActionAssignmentView,
			authorization.ObjectAssignmentSelf, authorization.ActionAssignmentSelfView,
		),
		s.GetAssignmentByID,
	)
	api.PATCH("/assignments/:id", s.authorize(authorization.ObjectAssignment, authorization.ActionAssignmentUpdate), s.UpdateAssignment)
	api.PATCH("/assignments/:id/status", s.authorize(authorization.ObjectAssignmentSelf, authorization.ActionAssignmentSelfUpdate), s.RequireAgent(), s.UpdateOwnAssignmentStatus)

	// -------- Approvals --------
	api.POST("/approvals", s.authorize(authorization.ObjectApproval, authorization.ActionApprovalSubmit), s.RequireAgent(), s.SubmitApproval)
	api.GET("/approvals", s.authorize(authorization.ObjectApproval, authorization.ActionApprovalView), s.ListApprovals)
	api.GET("/approvals/pending", s.authorize(authorization.ObjectApproval, authorization.ActionApprovalView), s.ListPendingApprovals)
	api.GET("/approvals/:id", s.authorize(authorization.ObjectApproval, authorization.ActionApprovalView), s.GetApprovalByID)
	api.POST("/approvals/:id/approve", s.authorize(authorization.ObjectApproval, authorization.ActionApprovalReview), s.ApproveRequest)
	api.POST("/approvals/:id/reject", s.authorize(authorization.ObjectApproval, authorization.ActionApprovalReview), s.RejectRequest)

	// -------- Readings --------
	api.POST("/readings", s.authorize(authorization.ObjectReading, authorization.ActionReadingCreate), s.SubmitReading)
	api.GET("/readings", s.authorize(authorization.ObjectReading, authorization.ActionReadingView), s.ListReadings)
	api.GET("/readings/:id", s.authorize(authorization.ObjectReading, authorization.ActionReadingView), s.GetReadingByID)
	api.PATCH("/readings/:id", s.authorize(authorization.ObjectReading, authorization.ActionReadingUpdate), s.UpdateReading)
	api.POST("/readings/:id/verify", s.authorize(authorization.ObjectReading, authorization.ActionReadingVerify), s.VerifyReading)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
