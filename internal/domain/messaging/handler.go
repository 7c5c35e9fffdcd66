package messaging

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/authz"
	"github.com/clinicore/clinicore/internal/domain/credentials"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/storage"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	gw *Gateway
}

func NewHandler(gw *Gateway) *Handler {
	return &Handler{gw: gw}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/messages", h.List)
	api.POST("/messages", h.Send)
	api.GET("/messages/contacts", h.Contacts)
	api.GET("/messages/conversation/:accountID", h.Conversation)
	api.POST("/messages/:id/read", h.MarkRead)
	api.GET("/messages/:id/attachment", h.Attachment)
}

// Send accepts either a JSON body or a multipart form with an optional
// "file" part.
func (h *Handler) Send(c echo.Context) error {
	ctx := c.Request().Context()
	senderID := auth.AccountIDFromContext(ctx)
	role, err := authz.ParseRole(auth.RoleFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid identity")
	}

	var receiverID, text string
	var sent *Message

	if fh, ferr := c.FormFile("file"); ferr == nil {
		receiverID = c.FormValue("receiver_id")
		text = c.FormValue("text")
		src, oerr := fh.Open()
		if oerr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, oerr.Error())
		}
		defer src.Close()
		sent, err = h.gw.Send(ctx, senderID, role, receiverID, text, fh.Filename, src)
	} else {
		var req struct {
			ReceiverID string `json:"receiver_id" form:"receiver_id"`
			Text       string `json:"text" form:"text"`
		}
		if berr := c.Bind(&req); berr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, berr.Error())
		}
		sent, err = h.gw.Send(ctx, senderID, role, req.ReceiverID, req.Text, "", nil)
	}
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, sent)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.gw.List(ctx, auth.AccountIDFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Conversation(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.gw.Conversation(ctx, auth.AccountIDFromContext(ctx), c.Param("accountID"), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) MarkRead(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.gw.MarkRead(ctx, auth.AccountIDFromContext(ctx), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Attachment(c echo.Context) error {
	ctx := c.Request().Context()
	rc, name, err := h.gw.OpenAttachment(ctx, auth.AccountIDFromContext(ctx), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, rc)
}

func (h *Handler) Contacts(c echo.Context) error {
	ctx := c.Request().Context()
	list, err := h.gw.Contacts(ctx, auth.AccountIDFromContext(ctx))
	if err != nil {
		return mapError(err)
	}
	if list == nil {
		list = []*credentials.Account{}
	}
	return c.JSON(http.StatusOK, list)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, authz.ErrPermissionDenied), errors.Is(err, ErrNotContact):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSelfMessage), errors.Is(err, ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
