package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: not found")
	ErrConflict = errors.New("storage: already exists")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "memory": private in-memory SQLite database (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleMarketer  Role = "marketer"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleMarketer, RoleAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserPending    UserStatus = "pending"
	UserAuthorized UserStatus = "authorized"
)

type User struct {
	ID        int64
	Username  string
	Name      string
	Position  string
	Role      Role
	Status    UserStatus
	CreatedAt time.Time
}

// AuthRequest exists only while a submission awaits review.
type AuthRequest struct {
	UserID      int64
	Username    string
	Name        string
	Position    string
	SubmittedAt time.Time
}

type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalApproved  ProposalStatus = "approved"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalCommented ProposalStatus = "commented"
)

type NewsProposal struct {
	ID          int64
	AuthorID    int64
	Username    string
	AuthorName  string
	Text        string
	Attachments []string
	Status      ProposalStatus
	ReviewerID  int64 // 0 until processed
	Comment     string
	CreatedAt   time.Time
	ProcessedAt time.Time // zero until processed
}

// DutyEntry is one assignment. Date is a calendar day in YYYY-MM-DD form.
type DutyEntry struct {
	ID             int64
	AssigneeName   string
	Date           string
	AssigneeUserID int64 // 0 if unresolved
	CreatedBy      int64
	CreatedAt      time.Time
	CheckedAt      time.Time // zero until the check phase saw it
	NotifiedAt     time.Time // zero until the reminder was delivered
}

const DateLayout = "2006-01-02"

type ChannelSubscriber struct {
	UserID       int64
	Name         string
	Username     string
	SubscribedAt time.Time
}

// AdminLog records a privileged action.
type AdminLog struct {
	ID           int64
	AdminID      int64
	Action       string
	TargetUserID int64
	Detail       string
	At           time.Time
}

type Stats struct {
	Users         int
	Moderators    int
	Marketers     int
	Admins        int
	PendingAuth   int
	Proposals     map[ProposalStatus]int
	DutyUpcoming  int
	DutyNotified  int
	Subscribers   int
	SchemaVersion int
}
