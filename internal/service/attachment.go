package service

import (
	"context"
	"io"
	"mime"
	"os"

	"github.com/Astemirdum/bookshelf-service/internal/errs"
	"github.com/Astemirdum/bookshelf-service/internal/model"
	"github.com/Astemirdum/bookshelf-service/internal/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	attachmentMediaType = "application/pdf"
	attachmentExt       = ".pdf"
	// attachRetries bounds the optimistic-concurrency loop on metadata commit.
	attachRetries = 3
)

// UploadAttachment binds a PDF to the book, replacing any prior file. Type and
// size are checked before any filesystem mutation. The metadata commit is
// conditioned on the record's updated_at; a losing writer removes its own file
// and retries against the fresh record, so metadata never points at a file a
// competing attach has removed.
func (s *Service) UploadAttachment(ctx context.Context, ownerID, bookUid string, file io.ReadSeeker, size int64, mimeType string) (model.Book, error) {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil || mt != attachmentMediaType {
		return model.Book{}, errs.ErrUnsupportedMedia
	}
	if size > s.maxSize {
		return model.Book{}, errs.ErrTooLarge
	}
	if size < 0 {
		return model.Book{}, errors.Wrap(errs.ErrValidation, "file size is unknown")
	}

	book, err := s.repo.GetBook(ctx, ownerID, bookUid)
	if err != nil {
		return model.Book{}, err
	}

	for attempt := 0; attempt < attachRetries; attempt++ {
		if book.HasAttachment && book.AttachmentPath != "" {
			if err := s.files.Remove(book.AttachmentPath); err != nil {
				s.log.Warn("remove prior attachment",
					zap.String("bookUid", bookUid), zap.Error(err))
			}
		}

		name := storage.NewName(attachmentExt)
		written, err := s.files.Save(name, io.LimitReader(file, s.maxSize+1))
		if err != nil {
			return model.Book{}, errors.Wrap(err, "store attachment")
		}
		if written > s.maxSize {
			s.removeOrphan(name)
			return model.Book{}, errs.ErrTooLarge
		}

		updated, err := s.repo.SetAttachment(ctx, ownerID, bookUid, model.Attachment{
			Present:   true,
			Path:      name,
			SizeBytes: written,
		}, book.UpdatedAt)
		if err == nil {
			s.publish(model.EventAttachmentAdded, updated)
			return updated, nil
		}

		// The commit either lost the race or the record is gone. Either way
		// the just-written file must not be left behind.
		s.removeOrphan(name)
		if !errors.Is(err, errs.ErrNotFound) {
			return model.Book{}, err
		}
		if book, err = s.repo.GetBook(ctx, ownerID, bookUid); err != nil {
			return model.Book{}, err
		}
		if _, err = file.Seek(0, io.SeekStart); err != nil {
			return model.Book{}, errors.Wrap(err, "rewind upload")
		}
	}
	return model.Book{}, errors.New("attachment commit contention")
}

// RemoveAttachment is a no-op when no attachment is present. File removal is
// best-effort: metadata must not stay pointed at an already-problematic file.
func (s *Service) RemoveAttachment(ctx context.Context, ownerID, bookUid string) (model.Book, error) {
	book, err := s.repo.GetBook(ctx, ownerID, bookUid)
	if err != nil {
		return model.Book{}, err
	}
	if !book.HasAttachment {
		return book, nil
	}
	if book.AttachmentPath != "" {
		if err := s.files.Remove(book.AttachmentPath); err != nil {
			s.log.Warn("remove attachment",
				zap.String("bookUid", bookUid), zap.Error(err))
		}
	}
	updated, err := s.repo.ClearAttachment(ctx, ownerID, bookUid)
	if err != nil {
		return model.Book{}, err
	}
	s.publish(model.EventAttachmentRemoved, updated)
	return updated, nil
}

// OpenAttachment streams the stored file. Metadata claiming a file that is
// missing on disk is surfaced as ErrAttachmentGone, never repaired here.
func (s *Service) OpenAttachment(ctx context.Context, ownerID, bookUid string) (io.ReadCloser, int64, error) {
	book, err := s.repo.GetBook(ctx, ownerID, bookUid)
	if err != nil {
		return nil, 0, err
	}
	if !book.HasAttachment || book.AttachmentPath == "" {
		return nil, 0, errs.ErrNotFound
	}
	rc, size, err := s.files.Open(book.AttachmentPath)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Error("attachment metadata points at missing file",
				zap.String("bookUid", bookUid), zap.String("path", book.AttachmentPath))
			return nil, 0, errs.ErrAttachmentGone
		}
		return nil, 0, err
	}
	return rc, size, nil
}

func (s *Service) removeOrphan(name string) {
	if err := s.files.Remove(name); err != nil {
		s.log.Warn("remove orphan attachment", zap.String("name", name), zap.Error(err))
	}
}
