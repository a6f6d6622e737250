package models

import "time"

// Role is the closed authorization tier of an account. The wire values are
// the product's original Portuguese role names.
type Role string

const (
	RoleAdministrator Role = "administrador"
	RoleCollaborator  Role = "colaborador"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleAdministrator || r == RoleCollaborator
}

// DistributableQuota is a mandatory-distribution allowance assigned by an
// administrator. Remaining decreases as the holder sends points out; after
// ExpiresAt any unspent Remaining is forfeited from the effective balance.
type DistributableQuota struct {
	Total     int64      `json:"total"`
	Remaining int64      `json:"remaining"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// User is the account document. ID equals the authentication subject.
type User struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Email        string             `json:"email"`
	Role         Role               `json:"role"`
	TotalPoints  int64              `json:"totalPoints"`
	Quota        DistributableQuota `json:"distributableQuota"`
	PasswordHash string             `json:"-"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntrySent       EntryType = "sent"
	EntryReceived   EntryType = "received"
	EntryAdminGrant EntryType = "admin_grant"
)

// PointsEntry is one immutable signed point movement against one account.
// A transfer always produces exactly two of these with opposite amounts and
// the same OccurredAt.
type PointsEntry struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	Amount      int64     `json:"amount"`
	Type        EntryType `json:"type"`
	IsQuota     bool      `json:"isQuota"`
	OccurredAt  time.Time `json:"date"`
	Description string    `json:"description"`
}

// TransferRequest is the payload for transferPoints.
type TransferRequest struct {
	ReceiverID  string `json:"receiverId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// GrantRequest is the payload for grantPoints (admin only).
type GrantRequest struct {
	UserID      string `json:"userId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	IsQuota     bool   `json:"isQuota"`
}

// ProfileUpdateRequest is the payload for updateUserProfile.
type ProfileUpdateRequest struct {
	Name string `json:"name"`
}

// AdminUpdateRequest is the payload for updateUserByAdmin.
type AdminUpdateRequest struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// RegisterRequest is the payload for registerUser.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the payload for password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the signed token and the authenticated account.
type LoginResponse struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

// OperationStatus is the canonical result of every mutating operation.
type OperationStatus struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UserView is the read model for account data: the raw balance plus the
// derived effective balance, so consumers never re-implement the expiry rule.
type UserView struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Email            string             `json:"email"`
	Role             Role               `json:"role"`
	TotalPoints      int64              `json:"totalPoints"`
	EffectiveBalance int64              `json:"effectiveBalance"`
	Quota            DistributableQuota `json:"distributableQuota"`
}
