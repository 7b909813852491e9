package users

import "time"

type UserRepo interface {
	Upsert(user *User) error
	Delete(username string) error
	GetByUsername(username string) (*User, error)
	GetByID(ID string) (*User, error)
	List(offset, limit int) ([]*User, error)
	SetStatus(username string, status Status) error
	SetLastLogin(ID string, at time.Time) error
}
