package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/Astemirdum/bookshelf-service/internal/errs"
	"github.com/Astemirdum/bookshelf-service/internal/model"
	"github.com/Astemirdum/bookshelf-service/internal/repository"
	"github.com/Astemirdum/bookshelf-service/internal/storage"
	"github.com/Astemirdum/bookshelf-service/pkg/kafka"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FileStore is the stable-storage half of the attachment manager.
type FileStore interface {
	Save(name string, r io.Reader) (int64, error)
	Open(name string) (io.ReadCloser, int64, error)
	Remove(name string) error
}

var _ FileStore = (*storage.FileStore)(nil)

type Service struct {
	log     *zap.Logger
	repo    repository.Repository
	files   FileStore
	queue   Enqueuer
	maxSize int64
}

func NewService(repo repository.Repository, files FileStore, queue Enqueuer, maxSize int64, log *zap.Logger) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		files:   files,
		queue:   queue,
		maxSize: maxSize,
	}
}

func (s *Service) CreateBook(ctx context.Context, ownerID string, req model.CreateBookRequest) (model.Book, error) {
	title := strings.TrimSpace(req.Title)
	author := strings.TrimSpace(req.Author)
	if title == "" || author == "" {
		return model.Book{}, errors.Wrap(errs.ErrValidation, "title and author are required")
	}
	status := req.Status
	if status == "" {
		status = model.StatusWishlist
	}

	book, err := s.repo.CreateBook(ctx, model.Book{
		OwnerID:     ownerID,
		Title:       title,
		Author:      author,
		Description: req.Description,
		Notes:       req.Notes,
		CoverImage:  req.CoverImage,
		Status:      status,
		Rating:      req.Rating,
	})
	if err != nil {
		return model.Book{}, err
	}
	s.publish(model.EventBookCreated, book)
	return book, nil
}

func (s *Service) GetBook(ctx context.Context, ownerID, bookUid string) (model.Book, error) {
	return s.repo.GetBook(ctx, ownerID, bookUid)
}

func (s *Service) ListBooks(ctx context.Context, ownerID string, status model.Status, page, size int) (model.ListBooks, error) {
	return s.repo.ListBooks(ctx, ownerID, status, page, size)
}

func (s *Service) UpdateBook(ctx context.Context, ownerID, bookUid string, req model.UpdateBookRequest) (model.Book, error) {
	book, err := s.repo.UpdateBook(ctx, ownerID, bookUid, req)
	if err != nil {
		return model.Book{}, err
	}
	s.publish(model.EventBookUpdated, book)
	return book, nil
}

// DeleteBook removes the record first and cleans the file afterwards: the
// delete hands back the attachment path committed at delete time, so an
// attach landing after any earlier read cannot orphan its file.
func (s *Service) DeleteBook(ctx context.Context, ownerID, bookUid string) error {
	path, err := s.repo.DeleteBook(ctx, ownerID, bookUid)
	if err != nil {
		return err
	}
	if path != "" {
		if err := s.files.Remove(path); err != nil {
			s.log.Warn("remove attachment on delete",
				zap.String("bookUid", bookUid), zap.Error(err))
		}
	}
	s.publish(model.EventBookDeleted, model.Book{BookUid: bookUid, OwnerID: ownerID})
	return nil
}

func (s *Service) publish(eventType string, book model.Book) {
	if s.queue == nil {
		return
	}
	err := s.queue.Enqueue(kafka.BookEventsTopic, model.BookEvent{
		Type:    eventType,
		BookUid: book.BookUid,
		OwnerID: book.OwnerID,
		At:      time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("enqueue book event", zap.String("type", eventType), zap.Error(err))
	}
}
