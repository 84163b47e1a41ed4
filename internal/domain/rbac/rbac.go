// Пакет rbac — роли пользователей BlockEvidence и проверка разрешений.
// Роли упорядочены по весу; разрешение выдаётся роли с весом не ниже
// порогового либо явному набору ролей.
package rbac

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-set/v2"
)

// Роли пользователей.
const (
	RoleLawyer      = "lawyer"
	RoleJudge       = "judge"
	RoleOfficer     = "officer"
	RoleHeadOfficer = "head_officer"
	RoleAdmin       = "admin"
)

// Разрешения, проверяемые сервисами.
const (
	PermRegisterEvidence     = "register_evidence"
	PermManageCrimeBoxes     = "manage_crime_boxes"
	PermReviewAccessRequests = "review_access_requests"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleLawyer:      1,
	RoleJudge:       2,
	RoleOfficer:     3,
	RoleHeadOfficer: 4,
	RoleAdmin:       5,
}

// permissionMinWeight — минимальный вес роли для разрешения.
var permissionMinWeight = map[string]int{
	PermRegisterEvidence:     roleWeight[RoleOfficer],
	PermManageCrimeBoxes:     roleWeight[RoleHeadOfficer],
	PermReviewAccessRequests: roleWeight[RoleHeadOfficer],
}

// ElevatedRoles — роли с полномочиями руководителя (рассмотрение запросов,
// удаление чужих комментариев, доступ к любым уликам).
var ElevatedRoles = []string{RoleAdmin, RoleHeadOfficer}

// AllRoles возвращает все роли в порядке возрастания привилегий.
func AllRoles() []string {
	return []string{RoleLawyer, RoleJudge, RoleOfficer, RoleHeadOfficer, RoleAdmin}
}

// RoleList — перечень ролей через запятую для сообщений об ошибках.
func RoleList() string {
	return strings.Join(AllRoles(), ", ")
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// IsElevated — роль руководителя (admin, head_officer).
func IsElevated(role string) bool {
	return roleWeight[role] >= roleWeight[RoleHeadOfficer]
}

// HasPermission проверяет, выдано ли разрешение роли.
// Неизвестное разрешение или роль — отказ.
func HasPermission(role, permission string) bool {
	minWeight, ok := permissionMinWeight[permission]
	if !ok {
		return false
	}
	w, ok := roleWeight[role]
	return ok && w >= minWeight
}

// NormalizeRoles проверяет список ролей и убирает дубликаты,
// сохраняя порядок первого вхождения. Неизвестная роль — ошибка.
func NormalizeRoles(roles []string) ([]string, error) {
	seen := set.New[string](len(roles))
	result := make([]string, 0, len(roles))
	for _, r := range roles {
		if !IsValidRole(r) {
			return nil, fmt.Errorf("неизвестная роль %q (допустимые: %s)", r, RoleList())
		}
		if seen.Insert(r) {
			result = append(result, r)
		}
	}
	return result, nil
}

// RoleAllowed проверяет вхождение роли в список разрешённых.
// nil-список означает отсутствие ограничений.
func RoleAllowed(role string, allowed []string) bool {
	if allowed == nil {
		return true
	}
	return set.From(allowed).Contains(role)
}
