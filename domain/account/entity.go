package account

import "time"

// Permission codenames checked by the application.
const (
	PermAddProduct    = "add_product"
	PermChangeProduct = "change_product"
	PermDeleteProduct = "delete_product"
	PermViewProduct   = "view_product"
	PermAddOrder      = "add_order"
	PermChangeOrder   = "change_order"
	PermDeleteOrder   = "delete_order"
	PermViewOrder     = "view_order"
)

// KnownPermissions lists every permission row created on migration.
var KnownPermissions = []Permission{
	{Codename: PermAddProduct, Name: "Can add product"},
	{Codename: PermChangeProduct, Name: "Can change product"},
	{Codename: PermDeleteProduct, Name: "Can delete product"},
	{Codename: PermViewProduct, Name: "Can view product"},
	{Codename: PermAddOrder, Name: "Can add order"},
	{Codename: PermChangeOrder, Name: "Can change order"},
	{Codename: PermDeleteOrder, Name: "Can delete order"},
	{Codename: PermViewOrder, Name: "Can view order"},
}

// User is an account that can sign in.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"size:254;not null;default:''" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	IsStaff      bool      `gorm:"not null" json:"is_staff"`
	IsSuperuser  bool      `gorm:"not null" json:"is_superuser"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	DateJoined   time.Time `gorm:"autoCreateTime" json:"date_joined"`
}

// TableName returns the table name for User model.
func (User) TableName() string {
	return "users"
}

// Profile holds optional personal data for a user.
type Profile struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	Bio    string `gorm:"type:text;not null;default:''" json:"bio"`
	Avatar string `gorm:"size:255" json:"avatar,omitempty"`
}

// TableName returns the table name for Profile model.
func (Profile) TableName() string {
	return "profiles"
}

// Permission is a named capability.
type Permission struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Codename string `gorm:"size:100;uniqueIndex;not null" json:"codename"`
	Name     string `gorm:"size:255;not null" json:"name"`
}

// TableName returns the table name for Permission model.
func (Permission) TableName() string {
	return "permissions"
}

// Group bundles permissions granted to its members.
type Group struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	Name        string   `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Permissions []string `gorm:"-" json:"permissions"`
}

// TableName returns the table name for Group model.
func (Group) TableName() string {
	return "groups"
}

// UserPermission grants a permission directly to a user.
type UserPermission struct {
	UserID       uint `gorm:"primaryKey;autoIncrement:false"`
	PermissionID uint `gorm:"primaryKey;autoIncrement:false"`
}

// TableName returns the table name for UserPermission model.
func (UserPermission) TableName() string {
	return "user_permissions"
}

// UserGroup places a user in a group.
type UserGroup struct {
	UserID  uint `gorm:"primaryKey;autoIncrement:false"`
	GroupID uint `gorm:"primaryKey;autoIncrement:false"`
}

// TableName returns the table name for UserGroup model.
func (UserGroup) TableName() string {
	return "user_groups"
}

// GroupPermission grants a permission to every member of a group.
type GroupPermission struct {
	GroupID      uint `gorm:"primaryKey;autoIncrement:false"`
	PermissionID uint `gorm:"primaryKey;autoIncrement:false"`
}

// TableName returns the table name for GroupPermission model.
func (GroupPermission) TableName() string {
	return "group_permissions"
}
