package handler

import (
	"context"
	"io"

	"github.com/Astemirdum/bookshelf-service/internal/model"
	"github.com/Astemirdum/bookshelf-service/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type BookService interface {
	CreateBook(ctx context.Context, ownerID string, req model.CreateBookRequest) (model.Book, error)
	GetBook(ctx context.Context, ownerID, bookUid string) (model.Book, error)
	ListBooks(ctx context.Context, ownerID string, status model.Status, page, size int) (model.ListBooks, error)
	UpdateBook(ctx context.Context, ownerID, bookUid string, req model.UpdateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, ownerID, bookUid string) error
	UploadAttachment(ctx context.Context, ownerID, bookUid string, file io.ReadSeeker, size int64, mimeType string) (model.Book, error)
	OpenAttachment(ctx context.Context, ownerID, bookUid string) (io.ReadCloser, int64, error)
	RemoveAttachment(ctx context.Context, ownerID, bookUid string) (model.Book, error)
}

var _ BookService = (*service.Service)(nil)
