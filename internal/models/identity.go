package models

import "time"

// User lives in the identity store. Its ID is what academic and support rows
// copy as a UserRef.
type User struct {
	ID        UserRef   `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type Role struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}

type Permission struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
}

type RolePermission struct {
	RoleID       int64 `db:"role_id" json:"roleId"`
	PermissionID int64 `db:"permission_id" json:"permissionId"`
}

type UserRoleLink struct {
	UserID UserRef `db:"user_id" json:"userId"`
	RoleID int64   `db:"role_id" json:"roleId"`
}
