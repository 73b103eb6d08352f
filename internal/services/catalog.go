package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/auth"
	"github.com/diewo77/holzhandel-admin/internal/models"
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return q.Limit(limit).Offset(max(p.Offset, 0))
}

// ProductInput is the editable product form.
type ProductInput struct {
	SKU         string `json:"sku" validate:"required,max=50"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	WoodType    string `json:"wood_type" validate:"max=100"`
	Unit        string `json:"unit" validate:"max=20"`
	UnitPrice   string `json:"unit_price" validate:"required,decimal"`
	Stock       string `json:"stock_quantity" validate:"omitempty,decimal"`
	IsActive    *bool  `json:"is_active"`
}

// ProductService manages the firewood catalog.
type ProductService struct {
	db    *gorm.DB
	rules *RuleService
	now   func() time.Time
}

func NewProductService(d *gorm.DB, rules *RuleService) *ProductService {
	return &ProductService{db: d, rules: rules, now: time.Now}
}

// List returns products matching search (name, SKU or wood type).
func (s *ProductService) List(ctx context.Context, search string, activeOnly bool, page Page) ([]models.Product, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Product{})
	if term := strings.TrimSpace(search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR LOWER(wood_type) LIKE ?", like, like, like)
	}
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Product
	err := page.apply(q.Order("name, id")).Find(&out).Error
	return out, total, err
}

func (s *ProductService) Get(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("product %d", id))
	}
	return &p, nil
}

func (in ProductInput) apply(p *models.Product) error {
	price, err := decimal.NewFromString(strings.TrimSpace(in.UnitPrice))
	if err != nil || price.IsNegative() {
		return invalid("unit_price", "non_negative")
	}
	stock := decimal.Zero
	if raw := strings.TrimSpace(in.Stock); raw != "" {
		stock, err = decimal.NewFromString(raw)
		if err != nil || stock.IsNegative() {
			return invalid("stock_quantity", "non_negative")
		}
	}
	p.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.WoodType = in.WoodType
	p.Unit = in.Unit
	if p.Unit == "" {
		p.Unit = models.UnitSRM
	}
	p.UnitPrice = price
	p.Stock = stock
	p.IsActive = in.IsActive == nil || *in.IsActive
	return nil
}

func (s *ProductService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	var p models.Product
	if err := in.apply(&p); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSKU, p.SKU)
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &p, nil
}

func (s *ProductService) Update(ctx context.Context, id uint, in ProductInput) (*models.Product, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(p); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSKU, p.SKU)
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

// Delete soft-deletes a product; order and invoice lines keep their copies.
func (s *ProductService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return nil
}

// Quote is a product price after automation rules.
type Quote struct {
	ProductID uint            `json:"product_id"`
	BasePrice decimal.Decimal `json:"base_price"`
	Price     decimal.Decimal `json:"price"`
	Rules     []string        `json:"rules"`
}

// Price evaluates the active rules of a product against its list price.
func (s *ProductService) Price(ctx context.Context, id uint) (Quote, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{ProductID: p.ID, BasePrice: p.UnitPrice, Price: p.UnitPrice, Rules: []string{}}
	if s.rules == nil {
		return q, nil
	}
	prioritized, names, err := s.rules.RulesFor(ctx, p.ID)
	if err != nil {
		return q, err
	}
	q.Price = evaluate(prioritized, p.UnitPrice, s.now())
	q.Rules = names
	return q, nil
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Uninvoiced bool
	Search     string
	Page
}

// OrderService reads orders placed by the shop.
type OrderService struct {
	db *gorm.DB
}

func NewOrderService(d *gorm.DB) *OrderService {
	return &OrderService{db: d}
}

// List returns orders newest first.
func (s *OrderService) List(ctx context.Context, f OrderFilter) ([]models.Order, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Order{})
	if f.Uninvoiced {
		q = q.Where("NOT EXISTS (SELECT 1 FROM invoices WHERE invoices.order_id = orders.id)")
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(order_number) LIKE ? OR LOWER(customer_name) LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Order
	err := f.Page.apply(q.Order("created_at DESC, id DESC")).Find(&out).Error
	return out, total, err
}

// Get returns an order with its items and customer.
func (s *OrderService) Get(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		First(&o, id).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("order %d", id))
	}
	return &o, nil
}

// UserService authenticates back-office operators.
type UserService struct {
	db *gorm.DB
}

func NewUserService(d *gorm.DB) *UserService {
	return &UserService{db: d}
}

// Authenticate checks email and password. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(u.Password, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}
