package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"esfe/internal/catalog/models"
	id "esfe/pkg/domain"
	"esfe/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded catalog used by tests and the database-less
// development mode.
type InMemory struct {
	mu         sync.RWMutex
	programmes map[id.ProgrammeID]*models.Programme
	rules      map[id.FeeRuleID]*models.FeeRule
	years      map[id.AcademicYearID]*models.AcademicYear
}

func NewInMemory() *InMemory {
	return &InMemory{
		programmes: make(map[id.ProgrammeID]*models.Programme),
		rules:      make(map[id.FeeRuleID]*models.FeeRule),
		years:      make(map[id.AcademicYearID]*models.AcademicYear),
	}
}

func (s *InMemory) CreateProgramme(_ context.Context, p *models.Programme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.programmes {
		if existing.Code == p.Code {
			return sentinel.ErrConflict
		}
	}
	c := *p
	s.programmes[p.ID] = &c
	return nil
}

func (s *InMemory) FindProgramme(_ context.Context, programmeID id.ProgrammeID) (*models.Programme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programmes[programmeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *InMemory) CreateRule(_ context.Context, rule *models.FeeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rules {
		if existing.ProgrammeID == rule.ProgrammeID && strings.EqualFold(existing.Label, rule.Label) {
			return sentinel.ErrConflict
		}
	}
	c := *rule
	s.rules[rule.ID] = &c
	return nil
}

func (s *InMemory) UpdateRule(_ context.Context, rule *models.FeeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return sentinel.ErrNotFound
	}
	c := *rule
	s.rules[rule.ID] = &c
	return nil
}

func (s *InMemory) FindRule(_ context.Context, ruleID id.FeeRuleID) (*models.FeeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *rule
	return &c, nil
}

func (s *InMemory) ListRules(_ context.Context, programmeID id.ProgrammeID, activeOnly bool) ([]*models.FeeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.FeeRule
	for _, rule := range s.rules {
		if rule.ProgrammeID != programmeID || (activeOnly && !rule.Active) {
			continue
		}
		c := *rule
		out = append(out, &c)
	}
	sortRules(out)
	return out, nil
}

func (s *InMemory) CreateYear(_ context.Context, year *models.AcademicYear) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.years {
		if existing.StartYear == year.StartYear {
			return sentinel.ErrConflict
		}
	}
	c := *year
	c.IsActive = false
	s.years[year.ID] = &c
	return nil
}

func (s *InMemory) FindYear(_ context.Context, yearID id.AcademicYearID) (*models.AcademicYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	year, ok := s.years[yearID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *year
	return &c, nil
}

func (s *InMemory) ActiveYear(_ context.Context) (*models.AcademicYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, year := range s.years {
		if year.IsActive {
			c := *year
			return &c, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ActivateYear flips the active flag to yearID and clears it everywhere else
// under one lock.
func (s *InMemory) ActivateYear(_ context.Context, yearID id.AcademicYearID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.years[yearID]; !ok {
		return sentinel.ErrNotFound
	}
	for yid, year := range s.years {
		year.IsActive = yid == yearID
	}
	return nil
}

func sortRules(rules []*models.FeeRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Order != rules[j].Order {
			return rules[i].Order < rules[j].Order
		}
		return rules[i].Label < rules[j].Label
	})
}
