package service_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Astemirdum/bookshelf-service/internal/errs"
	"github.com/Astemirdum/bookshelf-service/internal/model"
	"github.com/Astemirdum/bookshelf-service/internal/service"
	"github.com/Astemirdum/bookshelf-service/internal/storage"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	repo_mocks "github.com/Astemirdum/bookshelf-service/internal/repository/mocks"
)

const (
	ownerID = "3f1c35c7-15d7-4f39-ae54-5a86759de1a4"
	bookUid = "9f3b7df5-6c83-4de2-8a72-1f4e6e3cf1ab"
	maxSize = int64(64)
)

func newService(t *testing.T) (*service.Service, *repo_mocks.MockRepository, string) {
	t.Helper()
	c := gomock.NewController(t)
	t.Cleanup(c.Finish)
	repo := repo_mocks.NewMockRepository(c)

	dir := t.TempDir()
	files, err := storage.NewFileStore(storage.Config{Dir: dir, MaxSizeBytes: maxSize}, zap.NewNop())
	require.NoError(t, err)

	return service.NewService(repo, files, nil, maxSize, zap.NewNop()), repo, dir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestService_CreateBook_Defaults(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newService(t)
	ctx := context.Background()

	repo.EXPECT().
		CreateBook(ctx, model.Book{
			OwnerID: ownerID,
			Title:   "Dune",
			Author:  "Herbert",
			Status:  model.StatusWishlist,
		}).
		DoAndReturn(func(_ context.Context, b model.Book) (model.Book, error) {
			b.BookUid = bookUid
			return b, nil
		})

	book, err := svc.CreateBook(ctx, ownerID, model.CreateBookRequest{
		Title:  "  Dune ",
		Author: " Herbert ",
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusWishlist, book.Status)
	require.Equal(t, 0, book.Rating)
	require.Equal(t, "Dune", book.Title)
	require.Equal(t, "Herbert", book.Author)
}

func TestService_CreateBook_EmptyTitle(t *testing.T) {
	t.Parallel()
	svc, _, _ := newService(t)

	_, err := svc.CreateBook(context.Background(), ownerID, model.CreateBookRequest{
		Title:  "   ",
		Author: "Herbert",
	})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestService_UpdateBook(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newService(t)
	ctx := context.Background()

	rating := 5
	status := model.StatusCompleted
	req := model.UpdateBookRequest{Rating: &rating, Status: &status}

	repo.EXPECT().
		UpdateBook(ctx, ownerID, bookUid, req).
		Return(model.Book{
			BookUid: bookUid,
			OwnerID: ownerID,
			Title:   "Dune",
			Author:  "Herbert",
			Status:  status,
			Rating:  rating,
		}, nil)

	book, err := svc.UpdateBook(ctx, ownerID, bookUid, req)
	require.NoError(t, err)
	require.Equal(t, "Dune", book.Title)
	require.Equal(t, "Herbert", book.Author)
	require.Equal(t, model.StatusCompleted, book.Status)
	require.Equal(t, 5, book.Rating)
}

func TestService_UpdateBook_NotFound(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newService(t)
	ctx := context.Background()

	repo.EXPECT().
		UpdateBook(ctx, ownerID, bookUid, model.UpdateBookRequest{}).
		Return(model.Book{}, errs.ErrNotFound)

	_, err := svc.UpdateBook(ctx, ownerID, bookUid, model.UpdateBookRequest{})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestService_UploadAttachment_RoundTrip(t *testing.T) {
	t.Parallel()
	svc, repo, dir := newService(t)
	ctx := context.Background()

	payload := []byte("%PDF-1.4 round trip payload")
	book := model.Book{BookUid: bookUid, OwnerID: ownerID, UpdatedAt: time.Now().UTC()}

	var committed model.Book
	repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(book, nil)
	repo.EXPECT().
		SetAttachment(ctx, ownerID, bookUid, gomock.Any(), book.UpdatedAt).
		DoAndReturn(func(_ context.Context, _, _ string, att model.Attachment, _ time.Time) (model.Book, error) {
			require.True(t, att.Present)
			require.Equal(t, int64(len(payload)), att.SizeBytes)
			committed = book
			committed.HasAttachment = true
			committed.AttachmentPath = att.Path
			committed.AttachmentSize = att.SizeBytes
			return committed, nil
		})

	updated, err := svc.UploadAttachment(ctx, ownerID, bookUid,
		bytes.NewReader(payload), int64(len(payload)), "application/pdf")
	require.NoError(t, err)
	require.True(t, updated.HasAttachment)
	require.Equal(t, int64(len(payload)), updated.AttachmentSize)
	require.Len(t, dirEntries(t, dir), 1)

	repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(committed, nil)
	rc, size, err := svc.OpenAttachment(ctx, ownerID, bookUid)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	require.Equal(t, int64(len(payload)), size)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestService_UploadAttachment_UnsupportedMedia(t *testing.T) {
	t.Parallel()
	svc, _, dir := newService(t)

	_, err := svc.UploadAttachment(context.Background(), ownerID, bookUid,
		bytes.NewReader([]byte("png bytes")), 9, "image/png")
	require.ErrorIs(t, err, errs.ErrUnsupportedMedia)
	// rejected before any filesystem mutation
	require.Empty(t, dirEntries(t, dir))
}

func TestService_UploadAttachment_SizeBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("exactly the limit", func(t *testing.T) {
		t.Parallel()
		svc, repo, _ := newService(t)
		payload := bytes.Repeat([]byte("a"), int(maxSize))
		book := model.Book{BookUid: bookUid, OwnerID: ownerID, UpdatedAt: time.Now().UTC()}

		repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(book, nil)
		repo.EXPECT().
			SetAttachment(ctx, ownerID, bookUid, gomock.Any(), book.UpdatedAt).
			DoAndReturn(func(_ context.Context, _, _ string, att model.Attachment, _ time.Time) (model.Book, error) {
				require.Equal(t, maxSize, att.SizeBytes)
				book.HasAttachment = true
				return book, nil
			})

		_, err := svc.UploadAttachment(ctx, ownerID, bookUid,
			bytes.NewReader(payload), int64(len(payload)), "application/pdf")
		require.NoError(t, err)
	})

	t.Run("one byte over", func(t *testing.T) {
		t.Parallel()
		svc, _, dir := newService(t)
		payload := bytes.Repeat([]byte("a"), int(maxSize)+1)

		_, err := svc.UploadAttachment(ctx, ownerID, bookUid,
			bytes.NewReader(payload), int64(len(payload)), "application/pdf")
		require.ErrorIs(t, err, errs.ErrTooLarge)
		require.Empty(t, dirEntries(t, dir))
	})

	t.Run("declared size lies", func(t *testing.T) {
		t.Parallel()
		svc, repo, dir := newService(t)
		payload := bytes.Repeat([]byte("a"), int(maxSize)+10)
		book := model.Book{BookUid: bookUid, OwnerID: ownerID, UpdatedAt: time.Now().UTC()}

		repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(book, nil)

		_, err := svc.UploadAttachment(ctx, ownerID, bookUid,
			bytes.NewReader(payload), maxSize, "application/pdf")
		require.ErrorIs(t, err, errs.ErrTooLarge)
		// the oversized write was rolled back
		require.Empty(t, dirEntries(t, dir))
	})
}

func TestService_UploadAttachment_ReplacesPrior(t *testing.T) {
	t.Parallel()
	svc, repo, dir := newService(t)
	ctx := context.Background()

	oldName := "11111111-2222-3333-4444-555555555555.pdf"
	require.NoError(t, os.WriteFile(filepath.Join(dir, oldName), []byte("old"), 0o644))

	book := model.Book{
		BookUid:        bookUid,
		OwnerID:        ownerID,
		HasAttachment:  true,
		AttachmentPath: oldName,
		AttachmentSize: 3,
		UpdatedAt:      time.Now().UTC(),
	}
	payload := []byte("%PDF-1.4 new one")

	repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(book, nil)
	repo.EXPECT().
		SetAttachment(ctx, ownerID, bookUid, gomock.Any(), book.UpdatedAt).
		DoAndReturn(func(_ context.Context, _, _ string, att model.Attachment, _ time.Time) (model.Book, error) {
			require.NotEqual(t, oldName, att.Path)
			book.AttachmentPath = att.Path
			book.AttachmentSize = att.SizeBytes
			return book, nil
		})

	_, err := svc.UploadAttachment(ctx, ownerID, bookUid,
		bytes.NewReader(payload), int64(len(payload)), "application/pdf")
	require.NoError(t, err)

	entries := dirEntries(t, dir)
	require.Len(t, entries, 1)
	require.NotEqual(t, oldName, entries[0])
}

func TestService_UploadAttachment_LosesRaceThenWins(t *testing.T) {
	t.Parallel()
	svc, repo, dir := newService(t)
	ctx := context.Background()

	payload := []byte("%PDF-1.4 contended")
	stale := model.Book{BookUid: bookUid, OwnerID: ownerID, UpdatedAt: time.Now().UTC().Add(-time.Minute)}
	fresh := stale
	fresh.UpdatedAt = time.Now().UTC()

	gomock.InOrder(
		repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(stale, nil),
		repo.EXPECT().
			SetAttachment(ctx, ownerID, bookUid, gomock.Any(), stale.UpdatedAt).
			Return(model.Book{}, errs.ErrNotFound),
		repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(fresh, nil),
		repo.EXPECT().
			SetAttachment(ctx, ownerID, bookUid, gomock.Any(), fresh.UpdatedAt).
			DoAndReturn(func(_ context.Context, _, _ string, att model.Attachment, _ time.Time) (model.Book, error) {
				fresh.HasAttachment = true
				fresh.AttachmentPath = att.Path
				fresh.AttachmentSize = att.SizeBytes
				return fresh, nil
			}),
	)

	updated, err := svc.UploadAttachment(ctx, ownerID, bookUid,
		bytes.NewReader(payload), int64(len(payload)), "application/pdf")
	require.NoError(t, err)
	require.True(t, updated.HasAttachment)

	// the loser's file was cleaned up, only the winner's remains
	entries := dirEntries(t, dir)
	require.Len(t, entries, 1)
	require.Equal(t, updated.AttachmentPath, entries[0])

	got, err := os.ReadFile(filepath.Join(dir, entries[0]))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestService_RemoveAttachment_Idempotent(t *testing.T) {
	t.Parallel()
	svc, repo, dir := newService(t)
	ctx := context.Background()

	name := "11111111-2222-3333-4444-555555555555.pdf"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("pdf"), 0o644))

	attached := model.Book{
		BookUid:        bookUid,
		OwnerID:        ownerID,
		HasAttachment:  true,
		AttachmentPath: name,
		AttachmentSize: 3,
	}
	detached := attached
	detached.HasAttachment = false
	detached.AttachmentPath = ""
	detached.AttachmentSize = 0

	repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(attached, nil)
	repo.EXPECT().ClearAttachment(ctx, ownerID, bookUid).Return(detached, nil)

	book, err := svc.RemoveAttachment(ctx, ownerID, bookUid)
	require.NoError(t, err)
	require.False(t, book.HasAttachment)
	require.Empty(t, dirEntries(t, dir))

	// second call is a no-op: same final state, no ClearAttachment issued
	repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(detached, nil)
	book, err = svc.RemoveAttachment(ctx, ownerID, bookUid)
	require.NoError(t, err)
	require.False(t, book.HasAttachment)
}

func TestService_OpenAttachment_MissingFileSurfaced(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newService(t)
	ctx := context.Background()

	repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(model.Book{
		BookUid:        bookUid,
		OwnerID:        ownerID,
		HasAttachment:  true,
		AttachmentPath: "deadbeef-0000-0000-0000-000000000000.pdf",
		AttachmentSize: 10,
	}, nil)

	_, _, err := svc.OpenAttachment(ctx, ownerID, bookUid)
	require.ErrorIs(t, err, errs.ErrAttachmentGone)
}

func TestService_OpenAttachment_NoAttachment(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newService(t)
	ctx := context.Background()

	repo.EXPECT().GetBook(ctx, ownerID, bookUid).Return(model.Book{BookUid: bookUid, OwnerID: ownerID}, nil)

	_, _, err := svc.OpenAttachment(ctx, ownerID, bookUid)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestService_DeleteBook_RemovesFile(t *testing.T) {
	t.Parallel()
	svc, repo, dir := newService(t)
	ctx := context.Background()

	name := "11111111-2222-3333-4444-555555555555.pdf"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("pdf"), 0o644))

	repo.EXPECT().DeleteBook(ctx, ownerID, bookUid).Return(name, nil)

	require.NoError(t, svc.DeleteBook(ctx, ownerID, bookUid))
	require.Empty(t, dirEntries(t, dir))
}

func TestService_DeleteBook_NotFound(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newService(t)
	ctx := context.Background()

	repo.EXPECT().DeleteBook(ctx, ownerID, bookUid).Return("", errs.ErrNotFound)

	require.ErrorIs(t, svc.DeleteBook(ctx, ownerID, bookUid), errs.ErrNotFound)
}
