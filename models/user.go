package models

// User is an account that can own interviews. It is created once at signup
// and never modified afterwards.
type User struct {
	UserID       string `gorm:"column:user_id;primaryKey" json:"user_id"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
}

// TableName keeps the table name stable for databases created before gorm
// managed the schema.
func (User) TableName() string {
	return "users"
}
