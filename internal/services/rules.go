package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/diewo77/holzhandel-admin/internal/automation"
	"github.com/diewo77/holzhandel-admin/internal/models"
)

// RuleInput is the editable price rule form.
type RuleInput struct {
	Name      string          `json:"name" validate:"required,max=255"`
	ProductID *uint           `json:"product_id"`
	Priority  int             `json:"priority" validate:"gte=0,lte=1000"`
	Active    *bool           `json:"active"`
	Rule      automation.Rule `json:"rule"`
}

// RuleService stores price automation rules.
type RuleService struct {
	db *gorm.DB
}

func NewRuleService(d *gorm.DB) *RuleService {
	return &RuleService{db: d}
}

func (s *RuleService) List(ctx context.Context) ([]models.PriceRule, error) {
	var out []models.PriceRule
	err := s.db.WithContext(ctx).Order("priority, id").Find(&out).Error
	return out, err
}

func (s *RuleService) Get(ctx context.Context, id uint) (*models.PriceRule, error) {
	var r models.PriceRule
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("price rule %d", id))
	}
	return &r, nil
}

func (s *RuleService) check(ctx context.Context, in RuleInput) error {
	if err := validate(in); err != nil {
		return err
	}
	if err := in.Rule.Validate(); err != nil {
		return &ValidationError{Violations: map[string]string{"rule": err.Error()}}
	}
	if in.ProductID != nil {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", *in.ProductID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("product %d: %w", *in.ProductID, ErrNotFound)
		}
	}
	return nil
}

func (in RuleInput) apply(r *models.PriceRule) {
	r.Name = strings.TrimSpace(in.Name)
	r.ProductID = in.ProductID
	r.Priority = in.Priority
	r.Active = in.Active == nil || *in.Active
	r.Rule = datatypes.NewJSONType(in.Rule)
}

func (s *RuleService) Create(ctx context.Context, in RuleInput) (*models.PriceRule, error) {
	if err := s.check(ctx, in); err != nil {
		return nil, err
	}
	var r models.PriceRule
	in.apply(&r)
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return nil, fmt.Errorf("create price rule: %w", err)
	}
	return &r, nil
}

func (s *RuleService) Update(ctx context.Context, id uint, in RuleInput) (*models.PriceRule, error) {
	if err := s.check(ctx, in); err != nil {
		return nil, err
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(r)
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return nil, fmt.Errorf("update price rule: %w", err)
	}
	return r, nil
}

func (s *RuleService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.PriceRule{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("price rule %d: %w", id, ErrNotFound)
	}
	return nil
}

// RulesFor returns the active rules applying to a product, global ones
// included, together with their names in evaluation order.
func (s *RuleService) RulesFor(ctx context.Context, productID uint) ([]automation.Prioritized, []string, error) {
	var rows []models.PriceRule
	err := s.db.WithContext(ctx).
		Where("active = ? AND (product_id IS NULL OR product_id = ?)", true, productID).
		Order("priority, id").
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	out := make([]automation.Prioritized, 0, len(rows))
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, automation.Prioritized{Priority: r.Priority, Rule: r.Rule.Data()})
		names = append(names, r.Name)
	}
	return out, names, nil
}

func evaluate(rules []automation.Prioritized, price decimal.Decimal, now time.Time) decimal.Decimal {
	return automation.Evaluate(rules, price, now).Round(2)
}
