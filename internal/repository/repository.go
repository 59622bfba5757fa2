package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/Astemirdum/bookshelf-service/internal/errs"
	"github.com/Astemirdum/bookshelf-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

// Repository is the owner-scoped record store. Every operation takes the
// owner id; a record owned by someone else is indistinguishable from a
// missing one (ErrNotFound).
type Repository interface {
	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	GetBook(ctx context.Context, ownerID, bookUid string) (model.Book, error)
	ListBooks(ctx context.Context, ownerID string, status model.Status, page, size int) (model.ListBooks, error)
	UpdateBook(ctx context.Context, ownerID, bookUid string, req model.UpdateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, ownerID, bookUid string) (string, error)
	SetAttachment(ctx context.Context, ownerID, bookUid string, att model.Attachment, expectedUpdatedAt time.Time) (model.Book, error)
	ClearAttachment(ctx context.Context, ownerID, bookUid string) (model.Book, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	bookTableName = `book`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var bookColumns = []string{
	"id", "book_uid", "owner_id", "title", "author", "description", "notes",
	"cover_image", "status", "rating", "has_attachment", "attachment_path",
	"attachment_size", "created_at", "updated_at",
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	query, args, err := qb.Insert(bookTableName).
		Columns("book_uid", "owner_id", "title", "author", "description", "notes",
			"cover_image", "status", "rating").
		Values(uuid.New(), book.OwnerID, book.Title, book.Author, book.Description,
			book.Notes, book.CoverImage, book.Status, book.Rating).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var created model.Book
	if err := r.db.GetContext(ctx, &created, query, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", query), zap.Any("args", args))
		return model.Book{}, wrapDBErr(err)
	}
	return created, nil
}

func (r *repository) GetBook(ctx context.Context, ownerID, bookUid string) (model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(bookTableName).
		Where(sq.Eq{"book_uid": bookUid}).
		Where(sq.Eq{"owner_id": ownerID}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) ListBooks(ctx context.Context, ownerID string, status model.Status, page, size int) (model.ListBooks, error) {
	q := qb.Select(bookColumns...).
		From(bookTableName).
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at desc, id desc")

	if status != "" {
		q = q.Where(sq.Eq{"status": status})
	}
	if page != 0 && size != 0 {
		q = q.Limit(uint64(size)).Offset(uint64((page - 1) * size))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	books := make([]model.Book, 0)
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return model.ListBooks{}, err
	}

	return model.ListBooks{
		Paging: model.Paging{
			Page:          page,
			PageSize:      size,
			TotalElements: len(books),
		},
		Items: books,
	}, nil
}

// updateSet builds the partial-update column set: only supplied fields
// change, and an empty or blank title/author never overwrites the stored
// value. Optional text fields overwrite with whatever was supplied, the
// empty string included.
func updateSet(req model.UpdateBookRequest) map[string]interface{} {
	set := map[string]interface{}{}
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		set["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil && strings.TrimSpace(*req.Author) != "" {
		set["author"] = strings.TrimSpace(*req.Author)
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.Notes != nil {
		set["notes"] = *req.Notes
	}
	if req.CoverImage != nil {
		set["cover_image"] = *req.CoverImage
	}
	if req.Status != nil {
		set["status"] = *req.Status
	}
	if req.Rating != nil {
		set["rating"] = *req.Rating
	}
	return set
}

func (r *repository) UpdateBook(ctx context.Context, ownerID, bookUid string, req model.UpdateBookRequest) (model.Book, error) {
	set := updateSet(req)
	if len(set) == 0 {
		return r.GetBook(ctx, ownerID, bookUid)
	}
	set["updated_at"] = time.Now().UTC()

	query, args, err := qb.Update(bookTableName).
		SetMap(set).
		Where(sq.Eq{"book_uid": bookUid}).
		Where(sq.Eq{"owner_id": ownerID}).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		r.log.Error("UpdateBook", zap.String("q", query), zap.Any("args", args))
		return model.Book{}, wrapDBErr(err)
	}
	return book, nil
}

// DeleteBook removes the record and hands back the attachment path committed
// at delete time, so file cleanup cannot miss an attach that landed after a
// prior read.
func (r *repository) DeleteBook(ctx context.Context, ownerID, bookUid string) (string, error) {
	query, args, err := qb.Delete(bookTableName).
		Where(sq.Eq{"book_uid": bookUid}).
		Where(sq.Eq{"owner_id": ownerID}).
		Suffix("returning attachment_path").
		ToSql()
	if err != nil {
		return "", err
	}

	var path string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errs.ErrNotFound
		}
		return "", err
	}
	return path, nil
}

// SetAttachment commits attachment metadata only when the record has not
// moved since expectedUpdatedAt. A CAS miss surfaces as ErrNotFound; the
// caller re-reads to tell a lost race from a deleted record.
func (r *repository) SetAttachment(ctx context.Context, ownerID, bookUid string, att model.Attachment, expectedUpdatedAt time.Time) (model.Book, error) {
	query, args, err := qb.Update(bookTableName).
		SetMap(map[string]interface{}{
			"has_attachment":  att.Present,
			"attachment_path": att.Path,
			"attachment_size": att.SizeBytes,
			"updated_at":      time.Now().UTC(),
		}).
		Where(sq.Eq{"book_uid": bookUid}).
		Where(sq.Eq{"owner_id": ownerID}).
		Where(sq.Eq{"updated_at": expectedUpdatedAt}).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) ClearAttachment(ctx context.Context, ownerID, bookUid string) (model.Book, error) {
	query, args, err := qb.Update(bookTableName).
		SetMap(map[string]interface{}{
			"has_attachment":  false,
			"attachment_path": "",
			"attachment_size": 0,
			"updated_at":      time.Now().UTC(),
		}).
		Where(sq.Eq{"book_uid": bookUid}).
		Where(sq.Eq{"owner_id": ownerID}).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

// wrapDBErr maps postgres constraint violations (status enum, rating range)
// to the validation error so the handler answers 400, not 500.
func wrapDBErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
		return errors.Wrap(errs.ErrValidation, pgErr.Message)
	}
	return err
}
