package domain

import "time"

// Reader is a library account able to borrow books.
type Reader struct {
	ReaderID  string    `json:"reader_id" db:"reader_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
