package model

import "time"

type UserRole string

const (
	RoleClient   UserRole = "client"
	RoleProvider UserRole = "provider"
	RoleAdmin    UserRole = "admin"
)

type User struct {
	ID        string
	TenantID  string
	Name      string
	Email     string
	Phone     string
	Role      UserRole
	IsActive  bool
	CreatedAt time.Time
}

type Service struct {
	ID           string
	TenantID     string
	Name         string
	DurationMins int
	PriceCents   int64
	Currency     string
	Description  string
	ImageURL     string
	IsActive     bool
	CreatedAt    time.Time
}
