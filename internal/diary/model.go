package diary

import (
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/catalog"
	"github.com/MarcoPoloResearchLab/plate400/internal/civil"
)

const maxNoteLength = 240

// Entry is one product logged by a user on a calendar day. (user, date, product) is unique.
type Entry struct {
	ID          string          `gorm:"column:id;primaryKey;size:36;not null"`
	UserID      string          `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_diary_user_date_product,priority:1;index:idx_diary_user_date,priority:1"`
	EntryDate   civil.Date      `gorm:"column:entry_date;type:varchar(10);not null;uniqueIndex:idx_diary_user_date_product,priority:2;index:idx_diary_user_date,priority:2"`
	ProductID   string          `gorm:"column:product_id;size:36;not null;uniqueIndex:idx_diary_user_date_product,priority:3"`
	Product     catalog.Product `gorm:"foreignKey:ProductID;references:ID;constraint:OnDelete:RESTRICT"`
	AmountGrams *int            `gorm:"column:amount_grams"`
	Note        string          `gorm:"column:note;size:240;not null;default:''"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "diary_entries"
}

// AddEntryRequest carries the raw inputs of a diary write. Date is YYYY-MM-DD or empty for today.
type AddEntryRequest struct {
	UserID      string
	ProductID   string
	Date        string
	AmountGrams *int
	Note        string
}

// AddEntryResult reports the outcome of AddEntry. AlreadyLogged is an expected outcome, not an error.
type AddEntryResult struct {
	Entry         Entry
	Date          civil.Date
	AlreadyLogged bool
}

// Day is one slot of the month grid; Date is zero for padding slots outside the month.
type Day struct {
	Date  civil.Date
	Count int
}

// InMonth reports whether the slot carries a date.
func (d Day) InMonth() bool {
	return !d.Date.IsZero()
}

// Month is the calendar view of one month.
type Month struct {
	Year      int
	Month     time.Month
	Weeks     [][7]Day
	PrevYear  int
	PrevMonth time.Month
	NextYear  int
	NextMonth time.Month
}

func truncateNote(note string) string {
	runes := []rune(note)
	if len(runes) <= maxNoteLength {
		return note
	}
	return string(runes[:maxNoteLength])
}
