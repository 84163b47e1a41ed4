// Пакет lifecycle — конечные автоматы статусов запросов доступа
// и событий передачи хранения.
//
// Два жизненных цикла:
//   - запрос доступа: pending → approved | denied
//   - передача хранения: pending → completed | rejected
//
// Конечные статусы не имеют исходящих переходов. Текущее состояние
// хранится в PostgreSQL; пакет только проверяет допустимость перехода.
package lifecycle

import (
	"fmt"
	"sort"
	"strings"
)

// Status — статус сущности с жизненным циклом.
type Status string

// Статусы запроса доступа.
const (
	AccessPending  Status = "pending"
	AccessApproved Status = "approved"
	AccessDenied   Status = "denied"
)

// Статусы передачи хранения.
const (
	CustodyPending   Status = "pending"
	CustodyCompleted Status = "completed"
	CustodyRejected  Status = "rejected"
)

// Коды ошибок перехода.
const (
	CodeInvalidTarget     = "INVALID_TARGET"
	CodeInvalidTransition = "INVALID_TRANSITION"
)

// Machine — матрица допустимых переходов одного жизненного цикла.
type Machine struct {
	name        string
	transitions map[Status]map[Status]bool
}

// AccessRequest — жизненный цикл запроса доступа к улике.
var AccessRequest = &Machine{
	name: "запрос доступа",
	transitions: map[Status]map[Status]bool{
		AccessPending:  {AccessApproved: true, AccessDenied: true},
		AccessApproved: {},
		AccessDenied:   {},
	},
}

// Custody — жизненный цикл события передачи хранения.
var Custody = &Machine{
	name: "передача хранения",
	transitions: map[Status]map[Status]bool{
		CustodyPending:   {CustodyCompleted: true, CustodyRejected: true},
		CustodyCompleted: {},
		CustodyRejected:  {},
	},
}

// IsKnown проверяет, принадлежит ли статус жизненному циклу.
func (m *Machine) IsKnown(s Status) bool {
	_, ok := m.transitions[s]
	return ok
}

// IsTerminal — статус без исходящих переходов.
func (m *Machine) IsTerminal(s Status) bool {
	next, ok := m.transitions[s]
	return ok && len(next) == 0
}

// Targets возвращает допустимые целевые статусы из from (отсортированы).
func (m *Machine) Targets(from Status) []Status {
	next := m.transitions[from]
	result := make([]Status, 0, len(next))
	for s := range next {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// ValidateTarget проверяет, что target — конечный статус, достижимый
// из начального. Используется до обращения к хранилищу.
func (m *Machine) ValidateTarget(target Status) error {
	if !m.IsKnown(target) || !m.IsTerminal(target) {
		return &TransitionError{
			Code:    CodeInvalidTarget,
			Message: fmt.Sprintf("%s: недопустимый целевой статус %q", m.name, target),
		}
	}
	return nil
}

// Transition проверяет переход from → to.
func (m *Machine) Transition(from, to Status) error {
	if err := m.ValidateTarget(to); err != nil {
		return err
	}
	if !m.transitions[from][to] {
		allowed := "нет"
		if targets := m.Targets(from); len(targets) > 0 {
			names := make([]string, len(targets))
			for i, t := range targets {
				names[i] = string(t)
			}
			allowed = strings.Join(names, ", ")
		}
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("%s: переход %s → %s недопустим (из %s допустимо: %s)", m.name, from, to, from, allowed),
		}
	}
	return nil
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TARGET, INVALID_TRANSITION)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
