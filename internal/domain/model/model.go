// Пакет model — доменные модели BlockEvidence.
package model

import (
	"time"

	"github.com/guregu/null/v5"
)

// Статусы дела.
const (
	CaseOpen      = "open"
	CaseSuspended = "suspended"
	CaseClosed    = "closed"
)

// Типы улик.
const (
	EvidencePhysical    = "physical"
	EvidenceDigital     = "digital"
	EvidenceTestimonial = "testimonial"
)

// DefaultEvidenceStatus — статус новой улики.
const DefaultEvidenceStatus = "secured"

// Действия журнала активности.
const (
	ActionCreatedCase           = "created_case"
	ActionUpdatedCase           = "updated_case"
	ActionLinkedCrimeBox        = "linked_crime_box"
	ActionCreatedCrimeBox       = "created_crime_box"
	ActionRegisteredEvidence    = "registered_evidence"
	ActionUploadedFile          = "uploaded_file"
	ActionCommented             = "commented"
	ActionDeletedComment        = "deleted_comment"
	ActionSubmittedLabResult    = "submitted_lab_result"
	ActionRequestedAccess       = "requested_access"
	ActionReviewedAccessRequest = "reviewed_access_request"
	ActionUpdatedRetention      = "updated_retention"
	ActionUpdatedAllowedRoles   = "updated_allowed_roles"
	ActionRequestedTransfer     = "requested_transfer"
	ActionAcceptedTransfer      = "accepted_transfer"
	ActionRejectedTransfer      = "rejected_transfer"
)

// Типы сущностей журнала активности.
const (
	EntityCase     = "Case"
	EntityCrimeBox = "CrimeBox"
	EntityEvidence = "Evidence"
)

// Типы уведомлений.
const (
	NotifyAccessRequest           = "access_request"
	NotifyAccessRequestReviewed   = "access_request_reviewed"
	NotifyCustodyTransfer         = "custody_transfer"
	NotifyCustodyTransferResolved = "custody_transfer_resolved"
	NotifyRetentionDue            = "retention_due"
)

// IsValidCaseStatus проверяет статус дела.
func IsValidCaseStatus(s string) bool {
	switch s {
	case CaseOpen, CaseSuspended, CaseClosed:
		return true
	default:
		return false
	}
}

// IsValidEvidenceType проверяет тип улики.
func IsValidEvidenceType(s string) bool {
	switch s {
	case EvidencePhysical, EvidenceDigital, EvidenceTestimonial:
		return true
	default:
		return false
	}
}

// UserSummary — краткие сведения о пользователе во вложенных ответах.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Role     string `json:"role,omitempty"`
}

// User — учётная запись.
type User struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	FullName     string      `json:"fullName"`
	Role         string      `json:"role"`
	BadgeNumber  null.String `json:"badgeNumber"`
	Department   null.String `json:"department"`
	PasswordHash string      `json:"-"`
	IsActive     bool        `json:"isActive"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Summary возвращает краткие сведения о пользователе.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role}
}

// Principal — аутентифицированный пользователь текущего запроса.
type Principal struct {
	ID       string
	Username string
	Role     string
}

// Case — расследование.
type Case struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description null.String       `json:"description"`
	Status      string            `json:"status"`
	CreatedByID string            `json:"createdById"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	CreatedBy   *UserSummary      `json:"createdBy,omitempty"`
	CrimeBoxes  []CrimeBoxSummary `json:"crimeBoxes,omitempty"`
}

// CaseUpdate — частичное обновление дела.
type CaseUpdate struct {
	Title       Patch[string] `json:"title"`
	Status      Patch[string] `json:"status"`
	Description Patch[string] `json:"description"`
}

// CrimeBox — граница доступа к материалам дела.
// Секреты не сериализуются; возвращаются только при создании.
type CrimeBox struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	PrivateKey string      `json:"-"`
	PublicKey  string      `json:"-"`
	CaseRefID  null.String `json:"caseRefId"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// CrimeBoxSummary — crime box без секретов во вложенных ответах.
type CrimeBoxSummary struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	CaseRefID null.String `json:"caseRefId"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Summary возвращает crime box без секретов.
func (b *CrimeBox) Summary() CrimeBoxSummary {
	return CrimeBoxSummary{ID: b.ID, Name: b.Name, CaseRefID: b.CaseRefID, CreatedAt: b.CreatedAt}
}

// Evidence — улика.
type Evidence struct {
	ID                  string         `json:"id"`
	CaseID              null.String    `json:"caseId"`
	CrimeBoxID          null.String    `json:"crimeBoxId"`
	Type                string         `json:"type"`
	Description         string         `json:"description"`
	Status              string         `json:"status"`
	CollectionDate      time.Time      `json:"collectionDate"`
	Location            string         `json:"location"`
	CollectedByID       string         `json:"collectedById"`
	CurrentCustodianID  string         `json:"currentCustodianId"`
	FileHash            null.String    `json:"fileHash"`
	Tags                []string       `json:"tags"`
	RetentionDeadline   null.Time      `json:"retentionDeadline"`
	RetentionPolicy     null.String    `json:"retentionPolicy"`
	RetentionNotifiedAt null.Time      `json:"-"`
	AllowedRoles        []string       `json:"allowedRoles"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
	CollectedBy         *UserSummary   `json:"collectedBy,omitempty"`
	CurrentCustodian    *UserSummary   `json:"currentCustodian,omitempty"`
	Files               []EvidenceFile `json:"files,omitempty"`
	CustodyEvents       []CustodyEvent `json:"custodyEvents,omitempty"`
}

// EvidenceFilter — фильтр списка улик.
type EvidenceFilter struct {
	CaseID string
	Status string
	Type   string
}

// EvidenceFile — вложение улики. Не изменяется после загрузки.
type EvidenceFile struct {
	ID           string      `json:"id"`
	EvidenceID   string      `json:"evidenceId"`
	FileName     string      `json:"fileName"`
	FileSize     int64       `json:"fileSize"`
	MimeType     string      `json:"mimeType"`
	SHA256Hash   string      `json:"sha256Hash"`
	StoragePath  string      `json:"-"`
	UploadedByID null.String `json:"uploadedById"`
	UploadedAt   time.Time   `json:"uploadedAt"`
}

// CustodyEvent — запись журнала передачи хранения.
type CustodyEvent struct {
	ID         string       `json:"id"`
	EvidenceID string       `json:"evidenceId"`
	FromUserID null.String  `json:"fromUserId"`
	ToUserID   string       `json:"toUserId"`
	Status     string       `json:"status"`
	Reason     string       `json:"reason"`
	CreatedAt  time.Time    `json:"timestamp"`
	ResolvedAt null.Time    `json:"resolvedAt"`
	FromUser   *UserSummary `json:"fromUser,omitempty"`
	ToUser     *UserSummary `json:"toUser,omitempty"`
}

// Comment — комментарий к улике.
type Comment struct {
	ID         string       `json:"id"`
	EvidenceID string       `json:"evidenceId"`
	UserID     string       `json:"userId"`
	Content    string       `json:"content"`
	CreatedAt  time.Time    `json:"createdAt"`
	User       *UserSummary `json:"user,omitempty"`
}

// LabResult — результат экспертизы. Неизменяем.
type LabResult struct {
	ID            string       `json:"id"`
	EvidenceID    string       `json:"evidenceId"`
	SubmittedByID string       `json:"submittedById"`
	Title         string       `json:"title"`
	Summary       string       `json:"summary"`
	Findings      null.String  `json:"findings"`
	CreatedAt     time.Time    `json:"createdAt"`
	Submitter     *UserSummary `json:"submitter,omitempty"`
}

// AccessRequest — запрос доступа к улике.
type AccessRequest struct {
	ID           string       `json:"id"`
	EvidenceID   string       `json:"evidenceId"`
	RequesterID  string       `json:"requesterId"`
	Reason       string       `json:"reason"`
	Status       string       `json:"status"`
	ReviewedByID null.String  `json:"reviewedById"`
	ReviewNotes  null.String  `json:"reviewNotes"`
	ReviewedAt   null.Time    `json:"reviewedAt"`
	CreatedAt    time.Time    `json:"createdAt"`
	Requester    *UserSummary `json:"requester,omitempty"`
	Reviewer     *UserSummary `json:"reviewer,omitempty"`
}

// Notification — уведомление пользователя.
type Notification struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Link      null.String `json:"link"`
	IsRead    bool        `json:"isRead"`
	DedupeKey string      `json:"-"`
	CreatedAt time.Time   `json:"createdAt"`
}

// ActivityLog — запись журнала активности. Только добавление.
type ActivityLog struct {
	ID          string       `json:"id"`
	ActorID     string       `json:"actorId"`
	Action      string       `json:"action"`
	EntityType  string       `json:"entityType"`
	EntityID    string       `json:"entityId"`
	EntityLabel null.String  `json:"entityLabel"`
	CreatedAt   time.Time    `json:"createdAt"`
	Actor       *UserSummary `json:"user,omitempty"`
}

// CountByKey — счётчик группировки.
type CountByKey struct {
	Key   string
	Count int
}

// DayCount — точка дневной гистограммы.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// StatusCount — количество улик в статусе.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// TypeCount — количество улик по типу.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Stats — агрегаты панели мониторинга.
type Stats struct {
	TotalEvidence         int           `json:"totalEvidence"`
	PendingTransfers      int           `json:"pendingTransfers"`
	TotalCases            int           `json:"totalCases"`
	TotalLabs             int           `json:"totalLabs"`
	PendingAccessRequests int           `json:"pendingAccessRequests"`
	UnreadNotifications   int           `json:"unreadNotifications"`
	EvidenceByStatus      []StatusCount `json:"evidenceByStatus"`
	EvidenceByType        []TypeCount   `json:"evidenceByType"`
	EvidenceOverTime      []DayCount    `json:"evidenceOverTime"`
}
