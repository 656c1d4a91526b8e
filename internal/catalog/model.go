package catalog

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/textkey"
	"gorm.io/gorm"
)

// Category is a node of the category tree; ParentID links to another row of the same table.
type Category struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	Name      string    `gorm:"column:name;size:120;not null;uniqueIndex"`
	Slug      string    `gorm:"column:slug;size:160;not null;uniqueIndex"`
	ParentID  *string   `gorm:"column:parent_id;size:36;index"`
	Parent    *Category `gorm:"foreignKey:ParentID;constraint:OnDelete:SET NULL"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "categories"
}

// BeforeCreate fills the slug from the name when the caller left it empty. The slug is
// never recomputed afterwards.
func (c *Category) BeforeCreate(*gorm.DB) error {
	if strings.TrimSpace(c.Slug) == "" {
		c.Slug = textkey.CategoryKey(c.Name)
	}
	return nil
}

// Product is a canonical catalog entry; (Name, Kind) is its natural key.
type Product struct {
	ID         string     `gorm:"column:id;primaryKey;size:36;not null"`
	Name       string     `gorm:"column:name;size:200;not null;uniqueIndex:idx_products_name_kind,priority:1"`
	Kind       string     `gorm:"column:kind;size:120;not null;default:'';uniqueIndex:idx_products_name_kind,priority:2"`
	Slug       string     `gorm:"column:slug;size:360;not null;uniqueIndex"`
	SearchName string     `gorm:"column:search_name;size:400;not null;default:'';index"`
	PhotoKey   string     `gorm:"column:photo_key;size:512;not null;default:''"`
	Kcal       float64    `gorm:"column:kcal;type:decimal(6,2);not null;default:0"`
	Protein    float64    `gorm:"column:protein;type:decimal(6,2);not null;default:0"`
	Fat        float64    `gorm:"column:fat;type:decimal(6,2);not null;default:0"`
	Carb       float64    `gorm:"column:carb;type:decimal(6,2);not null;default:0"`
	Categories []Category `gorm:"many2many:product_categories;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Product) TableName() string {
	return "products"
}

// Title renders "name — kind", or just the name when there is no kind.
func (p Product) Title() string {
	if p.Kind == "" {
		return p.Name
	}
	return p.Name + " — " + p.Kind
}

// HasPhoto reports whether a photo blob is attached.
func (p Product) HasPhoto() bool {
	return strings.TrimSpace(p.PhotoKey) != ""
}

// ProductSeed describes a product to create; nutrients are per 100 g.
type ProductSeed struct {
	Name     string  `validate:"required,max=200"`
	Kind     string  `validate:"max=120"`
	Kcal     float64 `validate:"gte=0,lte=9999.99"`
	Protein  float64 `validate:"gte=0,lte=9999.99"`
	Fat      float64 `validate:"gte=0,lte=9999.99"`
	Carb     float64 `validate:"gte=0,lte=9999.99"`
	PhotoKey string
}

// ProductFilter narrows the catalog listing.
type ProductFilter struct {
	Query        string
	CategorySlug string
	Page         int
}

// ProductPage is one page of the catalog listing.
type ProductPage struct {
	Products   []Product
	Page       int
	TotalPages int
	Total      int64
}

// HasPrevious reports whether a page precedes this one.
func (p ProductPage) HasPrevious() bool {
	return p.Page > 1
}

// HasNext reports whether a page follows this one.
func (p ProductPage) HasNext() bool {
	return p.Page < p.TotalPages
}

// ProductSearchKey is the folded text matched by catalog search.
func ProductSearchKey(name, kind string) string {
	return textkey.Fold(name + " " + kind)
}

func productSlugBase(name, kind string) string {
	base := name
	if kind != "" {
		base = name + "-" + kind
	}
	slug := textkey.Slugify(base)
	if slug == "" {
		return "product"
	}
	return slug
}

// SplitCategoryNames splits comma-separated input into trimmed, non-empty names.
func SplitCategoryNames(text string) []string {
	parts := strings.Split(text, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}
