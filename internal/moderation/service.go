// Package moderation runs the proposal workflow that promotes user submissions into the catalog.
package moderation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/ids"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew = "moderation.service.new"
	opSubmit     = "moderation.submit"
	opGet        = "moderation.get"
	opList       = "moderation.list_by_status"
	opUpdate     = "moderation.update"
	opApprove    = "moderation.approve"
	opReject     = "moderation.reject"

	rejectionMarker = "\n\n[Rejection reason]\n"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingCatalog    = errors.New("catalog is required")
	errNotPending        = errors.New("proposal is no longer pending")
	validate             = validator.New()
)

// Catalog is the slice of the catalog service that approval writes through.
type Catalog interface {
	FindOrCreateProductWithin(tx *gorm.DB, seed catalog.ProductSeed) (catalog.Product, bool, error)
	AttachPhotoWithin(tx *gorm.DB, product *catalog.Product, photoKey string) (bool, error)
	ResolveCategoriesWithin(tx *gorm.DB, text string) ([]catalog.Category, error)
	AttachCategoriesWithin(tx *gorm.DB, product *catalog.Product, categories []catalog.Category) error
}

type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Catalog    Catalog
	Clock      func() time.Time
	Logger     *zap.Logger
}

type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	catalog    Catalog
	clock      func() time.Time
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Catalog == nil {
		return nil, apperr.Internal(opServiceNew, "missing_catalog", errMissingCatalog)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		catalog:    cfg.Catalog,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Submit stores a pending proposal owned by userID.
func (s *Service) Submit(ctx context.Context, userID string, request SubmitRequest) (Proposal, error) {
	request.Name = strings.TrimSpace(request.Name)
	request.Kind = strings.TrimSpace(request.Kind)
	request.PhotoKey = strings.TrimSpace(request.PhotoKey)
	request.CategoriesText = strings.TrimSpace(request.CategoriesText)
	request.Comment = strings.TrimSpace(request.Comment)
	if err := validate.Struct(request); err != nil {
		return Proposal{}, apperr.Validation(opSubmit, "invalid_proposal", "name is required and nutrients must be non-negative", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return Proposal{}, apperr.Internal(opSubmit, "id_generation_failed", err)
	}

	proposal := Proposal{
		ID:             id,
		UserID:         userID,
		Name:           request.Name,
		Kind:           request.Kind,
		PhotoKey:       request.PhotoKey,
		Kcal:           request.Kcal,
		Protein:        request.Protein,
		Fat:            request.Fat,
		Carb:           request.Carb,
		CategoriesText: request.CategoriesText,
		Comment:        request.Comment,
		Status:         StatusPending,
		CreatedAt:      s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&proposal).Error; err != nil {
		s.logError(opSubmit, "proposal_insert_failed", err, zap.String("user_id", userID))
		return Proposal{}, apperr.Internal(opSubmit, "proposal_insert_failed", err)
	}
	return proposal, nil
}

// Get loads a proposal by id.
func (s *Service) Get(ctx context.Context, proposalID string) (Proposal, error) {
	return s.load(s.db.WithContext(ctx), opGet, proposalID)
}

// ListByStatus returns proposals newest first. An unknown status lists every proposal.
func (s *Service) ListByStatus(ctx context.Context, rawStatus string) ([]Proposal, error) {
	query := s.db.WithContext(ctx).Model(&Proposal{})
	if status, ok := ParseStatus(rawStatus); ok {
		query = query.Where("status = ?", status)
	}
	var proposals []Proposal
	if err := query.Order("created_at DESC").Order("id DESC").Find(&proposals).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, apperr.Internal(opList, "query_failed", err)
	}
	return proposals, nil
}

// Update corrects a pending proposal in place.
func (s *Service) Update(ctx context.Context, moderatorID, proposalID string, request UpdateRequest) (Proposal, error) {
	request.Name = strings.TrimSpace(request.Name)
	request.Kind = strings.TrimSpace(request.Kind)
	request.CategoriesText = strings.TrimSpace(request.CategoriesText)
	if err := validate.Struct(request); err != nil {
		return Proposal{}, apperr.Validation(opUpdate, "invalid_proposal", "name is required and nutrients must be non-negative", err)
	}
	db := s.db.WithContext(ctx)
	proposal, err := s.load(db, opUpdate, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	if proposal.Status != StatusPending {
		return Proposal{}, apperr.Conflict(opUpdate, "not_pending", "only pending proposals can be edited", errNotPending)
	}

	result := db.Model(&Proposal{}).
		Where("id = ? AND status = ?", proposal.ID, StatusPending).
		Updates(map[string]interface{}{
			"name":            request.Name,
			"kind":            request.Kind,
			"kcal":            request.Kcal,
			"protein":         request.Protein,
			"fat":             request.Fat,
			"carb":            request.Carb,
			"categories_text": request.CategoriesText,
		})
	if result.Error != nil {
		s.logError(opUpdate, "proposal_update_failed", result.Error, zap.String("proposal_id", proposal.ID), zap.String("moderator_id", moderatorID))
		return Proposal{}, apperr.Internal(opUpdate, "proposal_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Proposal{}, apperr.Conflict(opUpdate, "not_pending", "only pending proposals can be edited", errNotPending)
	}
	return s.load(db, opUpdate, proposal.ID)
}

// Approve merges the proposal into the catalog. The status flip is the last write of the
// transaction, so a failure leaves the proposal pending and retryable.
func (s *Service) Approve(ctx context.Context, moderatorID, proposalID string) (Decision, error) {
	db := s.db.WithContext(ctx)
	proposal, err := s.load(db, opApprove, proposalID)
	if err != nil {
		return Decision{}, err
	}
	switch proposal.Status {
	case StatusApproved:
		return Decision{Outcome: OutcomeAlreadyApproved, Proposal: proposal}, nil
	case StatusRejected:
		return Decision{}, apperr.Conflict(opApprove, "already_rejected", "proposal was already rejected", errNotPending)
	}

	var decision Decision
	err = db.Transaction(func(tx *gorm.DB) error {
		product, created, err := s.catalog.FindOrCreateProductWithin(tx, proposal.seed())
		if err != nil {
			return err
		}
		if _, err := s.catalog.AttachPhotoWithin(tx, &product, proposal.PhotoKey); err != nil {
			return err
		}
		categories, err := s.catalog.ResolveCategoriesWithin(tx, proposal.CategoriesText)
		if err != nil {
			return err
		}
		if err := s.catalog.AttachCategoriesWithin(tx, &product, categories); err != nil {
			return err
		}

		reviewedAt := s.clock().UTC()
		result := tx.Model(&Proposal{}).
			Where("id = ? AND status = ?", proposal.ID, StatusPending).
			Updates(map[string]interface{}{
				"status":      StatusApproved,
				"reviewer_id": moderatorID,
				"reviewed_at": reviewedAt,
			})
		if result.Error != nil {
			return apperr.Internal(opApprove, "status_update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return errNotPending
		}
		proposal.Status = StatusApproved
		proposal.ReviewerID = &moderatorID
		proposal.ReviewedAt = &reviewedAt
		decision = Decision{
			Outcome:        OutcomeApproved,
			Proposal:       proposal,
			Product:        product,
			ProductCreated: created,
		}
		return nil
	})
	if errors.Is(err, errNotPending) {
		return s.concurrentDecision(db, opApprove, proposal.ID)
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			s.logError(opApprove, "transaction_failed", err, zap.String("proposal_id", proposal.ID), zap.String("moderator_id", moderatorID))
		}
		return Decision{}, err
	}
	return decision, nil
}

// Reject closes a pending proposal, appending reason to the comment when one is given.
func (s *Service) Reject(ctx context.Context, moderatorID, proposalID, reason string) (Decision, error) {
	db := s.db.WithContext(ctx)
	proposal, err := s.load(db, opReject, proposalID)
	if err != nil {
		return Decision{}, err
	}
	switch proposal.Status {
	case StatusRejected:
		return Decision{Outcome: OutcomeAlreadyRejected, Proposal: proposal}, nil
	case StatusApproved:
		return Decision{}, apperr.Conflict(opReject, "already_approved", "proposal was already approved", errNotPending)
	}

	comment := proposal.Comment
	if reason = strings.TrimSpace(reason); reason != "" {
		comment += rejectionMarker + reason
	}
	reviewedAt := s.clock().UTC()
	result := db.Model(&Proposal{}).
		Where("id = ? AND status = ?", proposal.ID, StatusPending).
		Updates(map[string]interface{}{
			"status":      StatusRejected,
			"reviewer_id": moderatorID,
			"reviewed_at": reviewedAt,
			"comment":     comment,
		})
	if result.Error != nil {
		s.logError(opReject, "status_update_failed", result.Error, zap.String("proposal_id", proposal.ID), zap.String("moderator_id", moderatorID))
		return Decision{}, apperr.Internal(opReject, "status_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.concurrentDecision(db, opReject, proposal.ID)
	}
	proposal.Status = StatusRejected
	proposal.ReviewerID = &moderatorID
	proposal.ReviewedAt = &reviewedAt
	proposal.Comment = comment
	return Decision{Outcome: OutcomeRejected, Proposal: proposal}, nil
}

// concurrentDecision resolves a guarded update that lost to another moderator.
func (s *Service) concurrentDecision(db *gorm.DB, operation, proposalID string) (Decision, error) {
	proposal, err := s.load(db, operation, proposalID)
	if err != nil {
		return Decision{}, err
	}
	switch {
	case operation == opApprove && proposal.Status == StatusApproved:
		return Decision{Outcome: OutcomeAlreadyApproved, Proposal: proposal}, nil
	case operation == opReject && proposal.Status == StatusRejected:
		return Decision{Outcome: OutcomeAlreadyRejected, Proposal: proposal}, nil
	default:
		return Decision{}, apperr.Conflict(operation, "decided_concurrently", "proposal was decided by another moderator", errNotPending)
	}
}

func (s *Service) load(db *gorm.DB, operation, proposalID string) (Proposal, error) {
	var proposal Proposal
	err := db.Where("id = ?", strings.TrimSpace(proposalID)).Take(&proposal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Proposal{}, apperr.NotFound(operation, "proposal_not_found", "proposal not found", err)
	}
	if err != nil {
		s.logError(operation, "proposal_select_failed", err, zap.String("proposal_id", proposalID))
		return Proposal{}, apperr.Internal(operation, "proposal_select_failed", err)
	}
	return proposal, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("moderation service error", attrs...)
}
