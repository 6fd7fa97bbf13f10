package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/fieldops/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads the policy table through the gorm adapter and seeds the
// built-in role permissions.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return seed(enforcer)
}

// NewMemoryEnforcer builds an enforcer without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	return seed(enforcer)
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role string, object string, action string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, role, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, role string, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("role", role),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, "", nil, "authorization.denied", "authorization", nil, map[string]any{
		"object": object,
		"action": action,
		"role":   role,
	})
}

func subject(role string) string {
	return fmt.Sprintf("role:%s", role)
}

func seed(enforcer *casbin.SyncedEnforcer) (*casbin.SyncedEnforcer, error) {
	policies := [][]string{
		{"role:manager", ObjectMeter, ActionMeterList},
		{"role:manager", ObjectMeter, ActionMeterView},
		{"role:manager", ObjectMeter, ActionMeterCreate},
		{"role:manager", ObjectMeter, ActionMeterUpdate},
		{"role:manager", ObjectMeter, ActionMeterDelete},
		{"role:manager", ObjectAgent, ActionAgentList},
		{"role:manager", ObjectAgent, ActionAgentView},
		{"role:manager", ObjectAgent, ActionAgentCreate},
		{"role:manager", ObjectAgent, ActionAgentStats},
		{"role:manager", ObjectAssignment, ActionAssignmentList},
		{"role:manager", ObjectAssignment, ActionAssignmentView},
		{"role:manager", ObjectAssignment, ActionAssignmentCreate},
		{"role:manager", ObjectAssignment, ActionAssignmentUpdate},
		{"role:manager", ObjectApproval, ActionApprovalView},
		{"role:manager", ObjectApproval, ActionApprovalReview},
		{"role:manager", ObjectReading, ActionReadingCreate},
		{"role:manager", ObjectReading, ActionReadingView},
		{"role:manager", ObjectReading, ActionReadingVerify},
		{"role:manager", ObjectReading, ActionReadingUpdate},

		// Admin inherits everything a manager can do.
		{"role:admin", ObjectAgent, ActionAgentUpdate},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		{"role:agent", ObjectMeter, ActionMeterView},
		{"role:agent", ObjectAgentSelf, ActionAgentSelfView},
		{"role:agent", ObjectAgentSelf, ActionAgentSelfUpdate},
		{"role:agent", ObjectAssignmentSelf, ActionAssignmentSelfView},
		{"role:agent", ObjectAssignmentSelf, ActionAssignmentSelfUpdate},
		{"role:agent", ObjectApproval, ActionApprovalSubmit},
		{"role:agent", ObjectReading, ActionReadingCreate},
		{"role:agent", ObjectReading, ActionReadingView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return nil, err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return nil, err
		}
	}

	has, err := enforcer.HasGroupingPolicy("role:admin", "role:manager")
	if err != nil {
		return nil, err
	}
	if !has {
		if _, err := enforcer.AddGroupingPolicy("role:admin", "role:manager"); err != nil {
			return nil, err
		}
	}
	return enforcer, nil
}
