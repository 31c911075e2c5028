package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/observability"
)

type LegalRepository interface {
	HasPendingAcceptance(ctx context.Context, userID uuid.UUID) (bool, error)
	AcceptActive(ctx context.Context, userID uuid.UUID) error
}

type GormLegalRepository struct{ db *gorm.DB }

func NewLegalRepository(db *gorm.DB) LegalRepository { return &GormLegalRepository{db: db} }

// HasPendingAcceptance reports whether an active document exists whose
// current version the user has not accepted.
func (r *GormLegalRepository) HasPendingAcceptance(ctx context.Context, userID uuid.UUID) (bool, error) {
	var pending int64
	err := r.db.WithContext(ctx).Model(&domain.LegalDocument{}).
		Where("active = ?", true).
		Where(`NOT EXISTS (
			SELECT 1 FROM legal_acceptances la
			WHERE la.legal_document_id = legal_documents.id
			  AND la.user_id = ?
			  AND la.version >= legal_documents.version)`, userID).
		Count(&pending).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "legal", "has_pending", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(ctx, "legal", "has_pending", "success")
	return pending > 0, nil
}

// AcceptActive records acceptance of the current version of every active
// document.
func (r *GormLegalRepository) AcceptActive(ctx context.Context, userID uuid.UUID) error {
	var docs []domain.LegalDocument
	if err := r.db.WithContext(ctx).Where("active = ?", true).Find(&docs).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "legal", "accept_active", "error")
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]domain.LegalAcceptance, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, domain.LegalAcceptance{UserID: userID, LegalDocumentID: d.ID, Version: d.Version, AcceptedAt: now})
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "legal_document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "accepted_at"}),
	}).Create(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "legal", "accept_active", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "legal", "accept_active", "success")
	return nil
}
