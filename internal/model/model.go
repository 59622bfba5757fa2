package model

import (
	"time"
)

type Status string

const (
	StatusReading   Status = "Reading"
	StatusCompleted Status = "Completed"
	StatusWishlist  Status = "Wishlist"
)

type Book struct {
	ID             int       `json:"-" db:"id"`
	BookUid        string    `json:"bookUid" db:"book_uid"`
	OwnerID        string    `json:"-" db:"owner_id"`
	Title          string    `json:"title" db:"title"`
	Author         string    `json:"author" db:"author"`
	Description    string    `json:"description" db:"description"`
	Notes          string    `json:"notes" db:"notes"`
	CoverImage     string    `json:"coverImage" db:"cover_image"`
	Status         Status    `json:"status" db:"status"`
	Rating         int       `json:"rating" db:"rating"`
	HasAttachment  bool      `json:"hasAttachment" db:"has_attachment"`
	AttachmentPath string    `json:"-" db:"attachment_path"`
	AttachmentSize int64     `json:"attachmentSize" db:"attachment_size"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Attachment is the metadata half of a stored file. An empty Path with
// Present=false clears the record's attachment.
type Attachment struct {
	Present   bool
	Path      string
	SizeBytes int64
}

type ListBooks struct {
	Paging `json:",inline"`
	Items  []Book `json:"items"`
}

type Paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

type CreateBookRequest struct {
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author" validate:"required"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
	CoverImage  string `json:"coverImage" validate:"omitempty,url"`
	Status      Status `json:"status" validate:"omitempty,oneof=Reading Completed Wishlist"`
	Rating      int    `json:"rating" validate:"min=0,max=5"`
}

// UpdateBookRequest carries partial updates. Nil means "leave unchanged";
// title and author additionally ignore empty values, they are never nulled.
type UpdateBookRequest struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Description *string `json:"description"`
	Notes       *string `json:"notes"`
	CoverImage  *string `json:"coverImage" validate:"omitempty,url"`
	Status      *Status `json:"status" validate:"omitempty,oneof=Reading Completed Wishlist"`
	Rating      *int    `json:"rating" validate:"omitempty,min=0,max=5"`
}

// BookEvent is published to the event feed after a successful mutation.
type BookEvent struct {
	Type    string    `json:"type"`
	BookUid string    `json:"bookUid"`
	OwnerID string    `json:"ownerId"`
	At      time.Time `json:"at"`
}

const (
	EventBookCreated       = "book_created"
	EventBookUpdated       = "book_updated"
	EventBookDeleted       = "book_deleted"
	EventAttachmentAdded   = "attachment_uploaded"
	EventAttachmentRemoved = "attachment_removed"
)
