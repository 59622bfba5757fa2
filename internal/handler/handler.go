package handler

import (
	"net/http"
	"strconv"

	md "github.com/Astemirdum/bookshelf-service/pkg/middleware"

	"github.com/Astemirdum/bookshelf-service/internal/errs"
	"github.com/Astemirdum/bookshelf-service/internal/model"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/validate"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Handler struct {
	bookSvc BookService
	log     *zap.Logger
}

func New(bookSvc BookService, log *zap.Logger) *Handler {
	h := &Handler{
		bookSvc: bookSvc,
		log:     log,
	}
	return h
}

func (h *Handler) NewRouter(jwtKey []byte) *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
		md.JwtAuthentication(jwtKey),
	)

	api.GET("/books", h.ListBooks)
	api.POST("/books", h.CreateBook)
	api.GET("/books/:bookUid", h.GetBook)
	api.PATCH("/books/:bookUid", h.UpdateBook)
	api.DELETE("/books/:bookUid", h.DeleteBook)

	api.POST("/books/:bookUid/attachment", h.UploadAttachment)
	api.GET("/books/:bookUid/attachment", h.DownloadAttachment)
	api.DELETE("/books/:bookUid/attachment", h.DeleteAttachment)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) ListBooks(c echo.Context) error {
	ctx := c.Request().Context()
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	var (
		page int
		size int
	)
	status := model.Status(c.QueryParam("status"))
	switch status {
	case "", model.StatusReading, model.StatusCompleted, model.StatusWishlist:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, errors.New("status is invalid"))
	}
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if page, err = strconv.Atoi(pageParam); err != nil || page < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("page is invalid"))
		}
	}
	if sizeParam := c.QueryParam("size"); sizeParam != "" {
		if size, err = strconv.Atoi(sizeParam); err != nil || size < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, errors.New("size is invalid"))
		}
	}

	books, err := h.bookSvc.ListBooks(ctx, ownerID, status, page, size)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) CreateBook(c echo.Context) error {
	ctx := c.Request().Context()
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	book, err := h.bookSvc.CreateBook(ctx, ownerID, req)
	if err != nil {
		return httpError(err)
	}
	h.log.Debug("book created",
		zap.String("bookUid", book.BookUid), zap.String("user", auth.GetUsername(ctx)))
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) GetBook(c echo.Context) error {
	ctx := c.Request().Context()
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	book, err := h.bookSvc.GetBook(ctx, ownerID, c.Param("bookUid"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) UpdateBook(c echo.Context) error {
	ctx := c.Request().Context()
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req model.UpdateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	book, err := h.bookSvc.UpdateBook(ctx, ownerID, c.Param("bookUid"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) DeleteBook(c echo.Context) error {
	ctx := c.Request().Context()
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if err := h.bookSvc.DeleteBook(ctx, ownerID, c.Param("bookUid")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UploadAttachment(c echo.Context) error {
	ctx := c.Request().Context()
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer func() { _ = f.Close() }()

	book, err := h.bookSvc.UploadAttachment(ctx, ownerID, c.Param("bookUid"),
		f, fileHeader.Size, fileHeader.Header.Get(echo.HeaderContentType))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) DownloadAttachment(c echo.Context) error {
	ctx := c.Request().Context()
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	rc, size, err := h.bookSvc.OpenAttachment(ctx, ownerID, c.Param("bookUid"))
	if err != nil {
		return httpError(err)
	}
	defer func() { _ = rc.Close() }()

	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	return c.Stream(http.StatusOK, "application/pdf", rc)
}

func (h *Handler) DeleteAttachment(c echo.Context) error {
	ctx := c.Request().Context()
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	book, err := h.bookSvc.RemoveAttachment(ctx, ownerID, c.Param("bookUid"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

// httpError maps the service error taxonomy onto status codes. A foreign
// owner and a missing record answer the same 404; so does metadata pointing
// at a lost file, which is already logged server-side.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, errs.ErrNotFound.Error())
	case errors.Is(err, errs.ErrAttachmentGone):
		return echo.NewHTTPError(http.StatusNotFound, errs.ErrNotFound.Error())
	case errors.Is(err, errs.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrUnsupportedMedia):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, errs.ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
