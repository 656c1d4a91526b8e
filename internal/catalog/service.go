package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/dberrors"
	"github.com/MarcoPoloResearchLab/plate400/internal/ids"
	"github.com/MarcoPoloResearchLab/plate400/internal/textkey"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew         = "catalog.service.new"
	opResolveCategories  = "catalog.resolve_categories"
	opCreateCategory     = "catalog.create_category"
	opCategoryPath       = "catalog.category_path"
	opListCategories     = "catalog.list_categories"
	opFindOrCreate       = "catalog.find_or_create_product"
	opAttachCategories   = "catalog.attach_categories"
	opAttachPhoto        = "catalog.attach_photo"
	opListProducts       = "catalog.list_products"
	opProductBySlug      = "catalog.product_by_slug"
	opProductByID        = "catalog.product_by_id"
	productsPerPage      = 12
	maxSlugSuffixAttempt = 1000
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	validate             = validator.New()
)

type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Service owns products and the category tree.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ResolveCategories finds or creates one category per distinct name in the
// comma-separated text. Names that fold to the same key resolve to one category.
func (s *Service) ResolveCategories(ctx context.Context, text string) ([]Category, error) {
	var resolved []Category
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		resolved, err = s.ResolveCategoriesWithin(tx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// ResolveCategoriesWithin is ResolveCategories bound to an open transaction.
func (s *Service) ResolveCategoriesWithin(tx *gorm.DB, text string) ([]Category, error) {
	names := SplitCategoryNames(text)
	resolved := make([]Category, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		key := textkey.CategoryKey(name)
		if key == "" {
			continue
		}
		if _, duplicate := seen[key]; duplicate {
			continue
		}
		seen[key] = struct{}{}

		category, err := s.findOrCreateCategory(tx, key, name, nil)
		if err != nil {
			s.logError(opResolveCategories, "category_resolve_failed", err, zap.String("slug", key))
			return nil, apperr.Internal(opResolveCategories, "category_resolve_failed", err)
		}
		resolved = append(resolved, category)
	}
	return resolved, nil
}

// CreateCategory adds a category under an optional parent, or returns the existing one
// with the same key.
func (s *Service) CreateCategory(ctx context.Context, name string, parentID *string) (Category, error) {
	name = strings.TrimSpace(name)
	key := textkey.CategoryKey(name)
	if key == "" {
		return Category{}, apperr.Validation(opCreateCategory, "missing_name", "category name is required", nil)
	}
	if parentID != nil {
		var parent Category
		err := s.db.WithContext(ctx).Where("id = ?", *parentID).Take(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Category{}, apperr.NotFound(opCreateCategory, "parent_not_found", "parent category not found", err)
		}
		if err != nil {
			return Category{}, apperr.Internal(opCreateCategory, "parent_select_failed", err)
		}
	}
	category, err := s.findOrCreateCategory(s.db.WithContext(ctx), key, name, parentID)
	if dberrors.IsForeignKeyViolation(err) {
		return Category{}, apperr.NotFound(opCreateCategory, "parent_not_found", "parent category not found", err)
	}
	if err != nil {
		s.logError(opCreateCategory, "category_insert_failed", err, zap.String("slug", key))
		return Category{}, apperr.Internal(opCreateCategory, "category_insert_failed", err)
	}
	return category, nil
}

func (s *Service) findOrCreateCategory(tx *gorm.DB, slug, name string, parentID *string) (Category, error) {
	var category Category
	err := tx.Where("slug = ?", slug).Take(&category).Error
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Category{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Category{}, err
	}
	category = Category{ID: id, Name: name, Slug: slug, ParentID: parentID}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&category)
	if result.Error != nil {
		return Category{}, result.Error
	}
	if result.RowsAffected == 1 {
		return category, nil
	}

	// a concurrent insert won the slug, or a category already carries this display name
	err = tx.Where("slug = ? OR name = ?", slug, name).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN slug = ? THEN 0 ELSE 1 END",
			Vars:               []interface{}{slug},
			WithoutParentheses: true,
		}}).
		Take(&category).Error
	if err != nil {
		return Category{}, fmt.Errorf("reload category %q: %w", slug, err)
	}
	return category, nil
}

// CategoryPath returns the chain from the root down to the category.
func (s *Service) CategoryPath(ctx context.Context, categoryID string) ([]Category, error) {
	db := s.db.WithContext(ctx)
	var path []Category
	visited := make(map[string]struct{})
	currentID := categoryID
	for currentID != "" {
		if _, loop := visited[currentID]; loop {
			break
		}
		visited[currentID] = struct{}{}

		var category Category
		err := db.Where("id = ?", currentID).Take(&category).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if len(path) == 0 {
				return nil, apperr.NotFound(opCategoryPath, "category_not_found", "category not found", err)
			}
			break
		}
		if err != nil {
			return nil, apperr.Internal(opCategoryPath, "category_select_failed", err)
		}
		path = append([]Category{category}, path...)
		currentID = ""
		if category.ParentID != nil {
			currentID = *category.ParentID
		}
	}
	return path, nil
}

// ListCategories returns every category ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := s.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		s.logError(opListCategories, "query_failed", err)
		return nil, apperr.Internal(opListCategories, "query_failed", err)
	}
	return categories, nil
}

// FindOrCreateProductWithin returns the product keyed by (name, kind), creating it from
// the seed when absent. Nutrients and photo are only taken from the seed on creation.
func (s *Service) FindOrCreateProductWithin(tx *gorm.DB, seed ProductSeed) (Product, bool, error) {
	seed.Name = strings.TrimSpace(seed.Name)
	seed.Kind = strings.TrimSpace(seed.Kind)
	if err := validate.Struct(seed); err != nil {
		return Product{}, false, apperr.Validation(opFindOrCreate, "invalid_product", "product name is required and nutrients must be non-negative", err)
	}

	var product Product
	err := tx.Where("name = ? AND kind = ?", seed.Name, seed.Kind).Take(&product).Error
	if err == nil {
		return product, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opFindOrCreate, "product_select_failed", err)
		return Product{}, false, apperr.Internal(opFindOrCreate, "product_select_failed", err)
	}

	slug, err := uniqueProductSlug(tx, productSlugBase(seed.Name, seed.Kind))
	if err != nil {
		s.logError(opFindOrCreate, "slug_allocation_failed", err)
		return Product{}, false, apperr.Internal(opFindOrCreate, "slug_allocation_failed", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return Product{}, false, apperr.Internal(opFindOrCreate, "id_generation_failed", err)
	}
	product = Product{
		ID:         id,
		Name:       seed.Name,
		Kind:       seed.Kind,
		Slug:       slug,
		SearchName: ProductSearchKey(seed.Name, seed.Kind),
		PhotoKey:   strings.TrimSpace(seed.PhotoKey),
		Kcal:       seed.Kcal,
		Protein:    seed.Protein,
		Fat:        seed.Fat,
		Carb:       seed.Carb,
	}
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(&product)
	if result.Error != nil {
		s.logError(opFindOrCreate, "product_insert_failed", result.Error)
		return Product{}, false, apperr.Internal(opFindOrCreate, "product_insert_failed", result.Error)
	}
	if result.RowsAffected == 1 {
		return product, true, nil
	}

	if err := tx.Where("name = ? AND kind = ?", seed.Name, seed.Kind).Take(&product).Error; err != nil {
		return Product{}, false, apperr.Internal(opFindOrCreate, "product_reload_failed", err)
	}
	return product, false, nil
}

// CreateProduct is FindOrCreateProductWithin in its own transaction, attaching categories.
func (s *Service) CreateProduct(ctx context.Context, seed ProductSeed, categoriesText string) (Product, bool, error) {
	var (
		product Product
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		product, created, err = s.FindOrCreateProductWithin(tx, seed)
		if err != nil {
			return err
		}
		categories, err := s.ResolveCategoriesWithin(tx, categoriesText)
		if err != nil {
			return err
		}
		return s.AttachCategoriesWithin(tx, &product, categories)
	})
	if err != nil {
		return Product{}, false, err
	}
	return product, created, nil
}

// AttachCategoriesWithin adds categories to the product without removing existing links.
func (s *Service) AttachCategoriesWithin(tx *gorm.DB, product *Product, categories []Category) error {
	if len(categories) == 0 {
		return nil
	}
	if err := tx.Model(product).Association("Categories").Append(categories); err != nil {
		s.logError(opAttachCategories, "association_failed", err, zap.String("product_id", product.ID))
		return apperr.Internal(opAttachCategories, "association_failed", err)
	}
	return nil
}

// AttachPhotoWithin sets the photo only when the product has none.
func (s *Service) AttachPhotoWithin(tx *gorm.DB, product *Product, photoKey string) (bool, error) {
	photoKey = strings.TrimSpace(photoKey)
	if photoKey == "" || product.HasPhoto() {
		return false, nil
	}
	result := tx.Model(&Product{}).
		Where("id = ? AND photo_key = ''", product.ID).
		Update("photo_key", photoKey)
	if result.Error != nil {
		s.logError(opAttachPhoto, "update_failed", result.Error, zap.String("product_id", product.ID))
		return false, apperr.Internal(opAttachPhoto, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	product.PhotoKey = photoKey
	return true, nil
}

// ListProducts returns one page of products ordered by name.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) (ProductPage, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := s.filteredProducts(db, filter).Count(&total).Error; err != nil {
		s.logError(opListProducts, "count_failed", err)
		return ProductPage{}, apperr.Internal(opListProducts, "count_failed", err)
	}

	totalPages := int((total + productsPerPage - 1) / productsPerPage)
	if totalPages == 0 {
		totalPages = 1
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	var products []Product
	err := s.filteredProducts(db, filter).
		Preload("Categories", func(db *gorm.DB) *gorm.DB {
			return db.Order("categories.name")
		}).
		Order("name").Order("kind").
		Offset((page - 1) * productsPerPage).
		Limit(productsPerPage).
		Find(&products).Error
	if err != nil {
		s.logError(opListProducts, "query_failed", err)
		return ProductPage{}, apperr.Internal(opListProducts, "query_failed", err)
	}

	return ProductPage{
		Products:   products,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}, nil
}

func (s *Service) filteredProducts(db *gorm.DB, filter ProductFilter) *gorm.DB {
	query := db.Model(&Product{})
	if folded := textkey.Fold(filter.Query); folded != "" {
		query = query.Where(`search_name LIKE ? ESCAPE '\'`, textkey.ContainsPattern(folded))
	}
	if slug := strings.TrimSpace(filter.CategorySlug); slug != "" {
		query = query.Where(
			"id IN (?)",
			db.Table("product_categories").
				Select("product_categories.product_id").
				Joins("JOIN categories ON categories.id = product_categories.category_id").
				Where("categories.slug = ?", slug),
		)
	}
	return query
}

// ProductBySlug loads a product with its categories.
func (s *Service) ProductBySlug(ctx context.Context, slug string) (Product, error) {
	var product Product
	err := s.db.WithContext(ctx).
		Preload("Categories", func(db *gorm.DB) *gorm.DB {
			return db.Order("categories.name")
		}).
		Where("slug = ?", strings.TrimSpace(slug)).
		Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, apperr.NotFound(opProductBySlug, "product_not_found", "product not found", err)
	}
	if err != nil {
		s.logError(opProductBySlug, "query_failed", err)
		return Product{}, apperr.Internal(opProductBySlug, "query_failed", err)
	}
	return product, nil
}

// ProductByIDWithin loads a product by id inside tx.
func ProductByIDWithin(tx *gorm.DB, productID string) (Product, error) {
	var product Product
	err := tx.Where("id = ?", productID).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Product{}, apperr.NotFound(opProductByID, "product_not_found", "product not found", err)
	}
	if err != nil {
		return Product{}, apperr.Internal(opProductByID, "query_failed", err)
	}
	return product, nil
}

// uniqueProductSlug appends -2, -3, … to base until no product holds the slug.
func uniqueProductSlug(tx *gorm.DB, base string) (string, error) {
	var taken []string
	err := tx.Model(&Product{}).
		Where(`slug = ? OR slug LIKE ? ESCAPE '\'`, base, textkey.PrefixPattern(base+"-")).
		Pluck("slug", &taken).Error
	if err != nil {
		return "", err
	}
	used := make(map[string]struct{}, len(taken))
	for _, slug := range taken {
		used[slug] = struct{}{}
	}
	if _, exists := used[base]; !exists {
		return base, nil
	}
	for suffix := 2; suffix < maxSlugSuffixAttempt; suffix++ {
		candidate := fmt.Sprintf("%s-%d", base, suffix)
		if _, exists := used[candidate]; !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free slug for %q", base)
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
	s.logger.Error("catalog service error", attrs...)
}
