package rules

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/database"
	"gorm.io/gorm"
)

// Store is the gorm-backed persistence layer for database.Rule rows,
// grounded on the same conditional-Updates idiom as queue.Store. It is the
// admin API's CRUD surface onto the rule table; the in-memory Engine built
// from FromDatabaseRule is what actually evaluates jobs.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RuleInput is the create/update payload the admin API binds JSON into.
type RuleInput struct {
	Name     string          `json:"name"`
	Enabled  bool            `json:"enabled"`
	Priority int             `json:"priority"`
	Expr     Expr            `json:"expr"`
	Actions  []ActionConfig  `json:"actions"`
}

// Create persists a new rule.
func (s *Store) Create(in RuleInput) (*database.Rule, error) {
	exprJSON, err := MarshalExpr(in.Expr)
	if err != nil {
		return nil, apperrors.Validation("expr", err.Error())
	}
	actionsJSON, err := json.Marshal(in.Actions)
	if err != nil {
		return nil, apperrors.Validation("actions", err.Error())
	}

	row := &database.Rule{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Enabled:     in.Enabled,
		Priority:    in.Priority,
		ExprJSON:    string(exprJSON),
		ActionsJSON: string(actionsJSON),
	}
	if err := s.db.Create(row).Error; err != nil {
		return nil, apperrors.Internal("create rule", err)
	}
	return row, nil
}

// Update replaces an existing rule's fields in place.
func (s *Store) Update(id string, in RuleInput) (*database.Rule, error) {
	exprJSON, err := MarshalExpr(in.Expr)
	if err != nil {
		return nil, apperrors.Validation("expr", err.Error())
	}
	actionsJSON, err := json.Marshal(in.Actions)
	if err != nil {
		return nil, apperrors.Validation("actions", err.Error())
	}

	result := s.db.Model(&database.Rule{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":         in.Name,
		"enabled":      in.Enabled,
		"priority":     in.Priority,
		"expr_json":    string(exprJSON),
		"actions_json": string(actionsJSON),
	})
	if result.Error != nil {
		return nil, apperrors.Internal("update rule", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.NotFound("rule", id)
	}
	return s.Get(id)
}

// Get fetches a single rule by id.
func (s *Store) Get(id string) (*database.Rule, error) {
	var row database.Rule
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("rule", id)
		}
		return nil, apperrors.Internal("get rule", err)
	}
	return &row, nil
}

// List returns every rule ordered priority DESC, the same ordering Engine
// sorts into at construction time.
func (s *Store) List() ([]database.Rule, error) {
	var rows []database.Rule
	if err := s.db.Order("priority DESC").Find(&rows).Error; err != nil {
		return nil, apperrors.Internal("list rules", err)
	}
	return rows, nil
}

// LoadEngine builds a rules.Engine from every persisted rule, skipping (and
// logging via the returned error slice) any row whose JSON columns fail to
// decode rather than aborting startup over one malformed rule.
func (s *Store) LoadEngine() (*Engine, []error) {
	rows, err := s.List()
	if err != nil {
		return New(nil), []error{err}
	}
	var decoded []Rule
	var decodeErrs []error
	for _, row := range rows {
		r, err := FromDatabaseRule(row)
		if err != nil {
			decodeErrs = append(decodeErrs, err)
			continue
		}
		decoded = append(decoded, r)
	}
	return New(decoded), decodeErrs
}
