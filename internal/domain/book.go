package domain

import "time"

// Book is a catalog entry. The circulation engine only reads it; catalog
// maintenance lives elsewhere.
type Book struct {
	BookID          string    `json:"book_id" db:"book_id"`
	Title           string    `json:"title" db:"title"`
	Author          string    `json:"author" db:"author"`
	Publisher       string    `json:"publisher" db:"publisher"`
	CallNo          string    `json:"call_no" db:"call_no"`
	DocType         string    `json:"doc_type" db:"doc_type"`
	PublicationYear int       `json:"publication_year" db:"publication_year"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
