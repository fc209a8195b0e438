package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role type to distinguish between account roles
type Role string

// Define constants for roles
const (
	RoleUser  Role = "user"  // a human owner of workspaces
	RoleAgent Role = "agent" // an automated producer calling Propose
	RoleAdmin Role = "admin" // maintenance endpoints (sweep, archive, replay)
)

// User represents an account in the system (a human user or an agent).
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`    // Should be unique
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never expose this via JSON
	Role         Role               `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) IsAgent() bool {
	return u.Role == RoleAgent
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
