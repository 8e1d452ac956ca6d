package postgres

import (
	"encoding/json"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// --- User ---

func toUserModel(u *domain.User) UserModel {
	return UserModel{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       string(u.Role),
		Initials:   u.Initials,
		DivisionID: u.DivisionID,
		UnitID:     u.UnitID,
		CreatedAt:  u.CreatedAt,
	}
}

func toUserDomain(m *UserModel) *domain.User {
	return &domain.User{
		ID:         m.ID,
		Name:       m.Name,
		Email:      m.Email,
		Role:       domain.Role(m.Role),
		Initials:   m.Initials,
		DivisionID: m.DivisionID,
		UnitID:     m.UnitID,
		CreatedAt:  m.CreatedAt,
	}
}

// --- Division ---

func toDivisionModel(d *domain.Division) DivisionModel {
	return DivisionModel{
		ID:        d.ID,
		Name:      d.Name,
		Code:      d.Code,
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt,
	}
}

func toDivisionDomain(m *DivisionModel) *domain.Division {
	return &domain.Division{
		ID:        m.ID,
		Name:      m.Name,
		Code:      m.Code,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
	}
}

// --- Unit ---

func toUnitModel(u *domain.Unit) UnitModel {
	return UnitModel{
		ID:         u.ID,
		Name:       u.Name,
		Code:       u.Code,
		DivisionID: u.DivisionID,
		CreatedBy:  u.CreatedBy,
		CreatedAt:  u.CreatedAt,
	}
}

func toUnitDomain(m *UnitModel) *domain.Unit {
	return &domain.Unit{
		ID:         m.ID,
		Name:       m.Name,
		Code:       m.Code,
		DivisionID: m.DivisionID,
		CreatedBy:  m.CreatedBy,
		CreatedAt:  m.CreatedAt,
	}
}

// --- Project ---

func toProjectModel(p *domain.Project) ProjectModel {
	assigned, _ := json.Marshal(p.AssignedUsers)
	if assigned == nil {
		assigned = []byte("[]")
	}
	codes, _ := json.Marshal(p.BudgetCodes)
	if codes == nil {
		codes = []byte("[]")
	}
	return ProjectModel{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Status:        string(p.Status),
		Priority:      string(p.Priority),
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
		Budget:        p.Budget,
		Spent:         p.Spent,
		UnitID:        p.UnitID,
		AssignedUsers: JSONB(assigned),
		BudgetCodes:   JSONB(codes),
		CreatedBy:     p.CreatedBy,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toProjectDomain(m *ProjectModel) *domain.Project {
	var assigned, codes []string
	if len(m.AssignedUsers) > 0 {
		_ = json.Unmarshal(m.AssignedUsers, &assigned)
	}
	if len(m.BudgetCodes) > 0 {
		_ = json.Unmarshal(m.BudgetCodes, &codes)
	}
	if assigned == nil {
		assigned = []string{}
	}
	if codes == nil {
		codes = []string{}
	}
	return &domain.Project{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Status:        domain.ProjectStatus(m.Status),
		Priority:      domain.ProjectPriority(m.Priority),
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		Budget:        m.Budget,
		Spent:         m.Spent,
		UnitID:        m.UnitID,
		AssignedUsers: assigned,
		BudgetCodes:   codes,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// --- Budget code ---

func toBudgetCodeModel(c *domain.BudgetCode) BudgetCodeModel {
	return BudgetCodeModel{
		ID:          c.ID,
		Code:        c.Code,
		Name:        c.Name,
		Description: c.Description,
		Budget:      c.Budget,
		Spent:       c.Spent,
		IsActive:    c.IsActive,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toBudgetCodeDomain(m *BudgetCodeModel) *domain.BudgetCode {
	return &domain.BudgetCode{
		ID:          m.ID,
		Code:        m.Code,
		Name:        m.Name,
		Description: m.Description,
		Budget:      m.Budget,
		Spent:       m.Spent,
		IsActive:    m.IsActive,
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// --- Budget entry ---

func toBudgetEntryModel(e *domain.BudgetEntry) BudgetEntryModel {
	return BudgetEntryModel{
		ID:           e.ID,
		ProjectID:    e.ProjectID,
		UnitID:       e.UnitID,
		DivisionID:   e.DivisionID,
		BudgetCodeID: e.BudgetCodeID,
		Description:  e.Description,
		Amount:       e.Amount,
		Type:         string(e.Type),
		Category:     e.Category,
		Date:         e.Date,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt,
	}
}

func toBudgetEntryDomain(m *BudgetEntryModel) *domain.BudgetEntry {
	return &domain.BudgetEntry{
		ID:           m.ID,
		ProjectID:    m.ProjectID,
		UnitID:       m.UnitID,
		DivisionID:   m.DivisionID,
		BudgetCodeID: m.BudgetCodeID,
		Description:  m.Description,
		Amount:       m.Amount,
		Type:         domain.EntryType(m.Type),
		Category:     m.Category,
		Date:         m.Date,
		CreatedBy:    m.CreatedBy,
		CreatedAt:    m.CreatedAt,
	}
}

// --- Notification ---

func toNotificationModel(n *domain.Notification) NotificationModel {
	data, _ := json.Marshal(n.Data)
	if data == nil {
		data = []byte("{}")
	}
	return NotificationModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Data:      JSONB(data),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

func toNotificationDomain(m *NotificationModel) *domain.Notification {
	var data map[string]any
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &data)
	}
	return &domain.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Type:      domain.NotificationType(m.Type),
		Title:     m.Title,
		Message:   m.Message,
		Data:      data,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}
