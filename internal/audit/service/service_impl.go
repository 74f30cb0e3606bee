package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/werkbank/fakturo/internal/audit/domain"
	"github.com/werkbank/fakturo/pkg/db/option"
	"github.com/werkbank/fakturo/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository[auditdomain.AuditLog]
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  repository.ProvideStore[auditdomain.AuditLog](p.DB),
	}
}

// AuditLog records one event. Audit failures are logged, never propagated:
// a billing operation must not fail because its trail write did.
func (s *Service) AuditLog(ctx context.Context, actorType auditdomain.ActorType, actorID, action, targetType, targetID string, metadata map[string]any) error {
	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
	}
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.log.Error("audit write failed",
			zap.String("action", action),
			zap.String("target_id", targetID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	filter := &auditdomain.AuditLog{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
	}

	limit := req.Limit
	if limit <= 0 || limit > 250 {
		limit = 100
	}

	items, err := s.repo.Find(ctx, filter,
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
		option.WithLimit(limit),
	)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}
	return auditdomain.ListAuditLogResponse{Logs: logs}, nil
}
