package moderation

import (
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
)

// Status is the proposal state. Approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus returns the status named by raw and whether it is known.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusApproved, StatusRejected:
		return Status(raw), true
	default:
		return "", false
	}
}

// Proposal is a user-submitted product awaiting review.
type Proposal struct {
	ID             string     `gorm:"column:id;primaryKey;size:36;not null"`
	UserID         string     `gorm:"column:user_id;size:190;not null;index"`
	Name           string     `gorm:"column:name;size:200;not null"`
	Kind           string     `gorm:"column:kind;size:120;not null;default:''"`
	PhotoKey       string     `gorm:"column:photo_key;size:512;not null;default:''"`
	Kcal           *float64   `gorm:"column:kcal;type:decimal(6,2)"`
	Protein        *float64   `gorm:"column:protein;type:decimal(6,2)"`
	Fat            *float64   `gorm:"column:fat;type:decimal(6,2)"`
	Carb           *float64   `gorm:"column:carb;type:decimal(6,2)"`
	CategoriesText string     `gorm:"column:categories_text;size:500;not null;default:''"`
	Comment        string     `gorm:"column:comment;type:text;not null;default:''"`
	Status         Status     `gorm:"column:status;size:16;not null;default:'pending';index"`
	ReviewerID     *string    `gorm:"column:reviewer_id;size:190"`
	ReviewedAt     *time.Time `gorm:"column:reviewed_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Proposal) TableName() string {
	return "product_proposals"
}

// Title renders "name — kind", or just the name when there is no kind.
func (p Proposal) Title() string {
	if p.Kind == "" {
		return p.Name
	}
	return p.Name + " — " + p.Kind
}

func (p Proposal) seed() catalog.ProductSeed {
	return catalog.ProductSeed{
		Name:     p.Name,
		Kind:     p.Kind,
		Kcal:     valueOrZero(p.Kcal),
		Protein:  valueOrZero(p.Protein),
		Fat:      valueOrZero(p.Fat),
		Carb:     valueOrZero(p.Carb),
		PhotoKey: p.PhotoKey,
	}
}

// SubmitRequest carries the fields of a new proposal. Nil nutrients were left blank.
type SubmitRequest struct {
	Name           string   `validate:"required,max=200"`
	Kind           string   `validate:"max=120"`
	PhotoKey       string   `validate:"max=512"`
	Kcal           *float64 `validate:"omitnil,gte=0,lte=9999.99"`
	Protein        *float64 `validate:"omitnil,gte=0,lte=9999.99"`
	Fat            *float64 `validate:"omitnil,gte=0,lte=9999.99"`
	Carb           *float64 `validate:"omitnil,gte=0,lte=9999.99"`
	CategoriesText string   `validate:"max=500"`
	Comment        string   `validate:"max=4000"`
}

// UpdateRequest is a moderator correction of a pending proposal. The photo is kept.
type UpdateRequest struct {
	Name           string   `validate:"required,max=200"`
	Kind           string   `validate:"max=120"`
	Kcal           *float64 `validate:"omitnil,gte=0,lte=9999.99"`
	Protein        *float64 `validate:"omitnil,gte=0,lte=9999.99"`
	Fat            *float64 `validate:"omitnil,gte=0,lte=9999.99"`
	Carb           *float64 `validate:"omitnil,gte=0,lte=9999.99"`
	CategoriesText string   `validate:"max=500"`
}

// Outcome names what a transition did.
type Outcome string

const (
	OutcomeApproved        Outcome = "approved"
	OutcomeAlreadyApproved Outcome = "already_approved"
	OutcomeRejected        Outcome = "rejected"
	OutcomeAlreadyRejected Outcome = "already_rejected"
)

// Decision is the result of Approve or Reject.
type Decision struct {
	Outcome        Outcome
	Proposal       Proposal
	Product        catalog.Product
	ProductCreated bool
}

func valueOrZero(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}
