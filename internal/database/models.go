package database

import "time"

// =============================================================================
// 🗃️ 数据模型
// =============================================================================

// Customer is the relational record for a registered user of the
// health-QA service.
type Customer struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the default pluralized table name.
func (Customer) TableName() string { return "customers" }

// CustomerProfile is the self-reported health context attached to a
// customer; kept separate from Customer so it can carry its own
// access-control and retention policy.
type CustomerProfile struct {
	CustomerID      string    `gorm:"primaryKey;type:uuid" json:"customer_id"`
	AgeBand         string    `gorm:"size:32" json:"age_band,omitempty"`
	Sex             string    `gorm:"size:16" json:"sex,omitempty"`
	KnownConditions string    `gorm:"type:text" json:"known_conditions,omitempty"` // JSON array
	CurrentMeds     string    `gorm:"type:text" json:"current_medications,omitempty"` // JSON array
	Allergies       string    `gorm:"type:text" json:"allergies,omitempty"` // JSON array
	PregnancyStatus string    `gorm:"size:32" json:"pregnancy_status,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (CustomerProfile) TableName() string { return "customer_profiles" }

// RefreshToken backs the JWT refresh-token seam; the service issues
// and verifies access tokens through types.TokenVerifier, but refresh
// tokens are persisted here so they can be revoked.
type RefreshToken struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	CustomerID string    `gorm:"index;type:uuid;not null" json:"customer_id"`
	TokenHash  string    `gorm:"uniqueIndex;size:128;not null" json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

// ChatSession is a conversation thread belonging to a customer.
type ChatSession struct {
	ID         string     `gorm:"primaryKey;type:uuid" json:"id"`
	CustomerID string     `gorm:"index;type:uuid;not null" json:"customer_id"`
	Title      string     `gorm:"size:255" json:"title,omitempty"`
	Language   string     `gorm:"size:16" json:"language,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (ChatSession) TableName() string { return "chat_sessions" }

// ChatMessage is one turn in a ChatSession.
type ChatMessage struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	SessionID  string    `gorm:"index;type:uuid;not null" json:"session_id"`
	Role       string    `gorm:"size:16;not null" json:"role"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Language   string    `gorm:"size:16" json:"language,omitempty"`
	SafetyFlag string    `gorm:"size:32" json:"safety_flag,omitempty"`
	Citations  string    `gorm:"type:text" json:"citations,omitempty"` // JSON array
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

// MessageFeedback records a thumbs up/down (and optional comment) on
// an assistant message.
type MessageFeedback struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	MessageID  string    `gorm:"index;type:uuid;not null" json:"message_id"`
	CustomerID string    `gorm:"type:uuid;not null" json:"customer_id"`
	Rating     int       `gorm:"not null" json:"rating"` // -1 or +1
	Comment    string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (MessageFeedback) TableName() string { return "message_feedback" }

// IPAddress is a lightweight per-request IP observation used by the
// IPObserver seam (reputation scoring stays out of scope per spec.md
// Non-goals; this table is where a future reputation job would read
// from).
type IPAddress struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	CustomerID string    `gorm:"index;type:uuid" json:"customer_id,omitempty"`
	Address    string    `gorm:"size:64;index;not null" json:"address"`
	SeenAt     time.Time `gorm:"index" json:"seen_at"`
}

func (IPAddress) TableName() string { return "ip_addresses" }

// AllModels lists every model for AutoMigrate callers.
func AllModels() []any {
	return []any{
		&Customer{},
		&CustomerProfile{},
		&RefreshToken{},
		&ChatSession{},
		&ChatMessage{},
		&MessageFeedback{},
		&IPAddress{},
	}
}
