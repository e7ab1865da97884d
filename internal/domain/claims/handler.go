package claims

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bkp4113/claim-app/internal/platform/validate"
	"github.com/bkp4113/claim-app/pkg/pagination"
)

const msgInvalidBatch = "Claim batch failed validation."

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the claim endpoints on g. topProviders wraps the
// aggregate endpoint, normally with a rate limiter.
func (h *Handler) RegisterRoutes(g *echo.Group, topProviders ...echo.MiddlewareFunc) {
	g.POST("", h.Ingest)
	g.GET("", h.ListClaims)
	g.GET("/top-providers", h.TopProviders, topProviders...)
	g.GET("/:claimId", h.GetClaim)
}

// ValidationResponse is the 422 body.
type ValidationResponse struct {
	Detail string           `json:"detail"`
	Errors ValidationErrors `json:"errors"`
}

type claimIDParam struct {
	ClaimID int64 `param:"claimId" validate:"gt=0,lt=10000"`
}

func (h *Handler) Ingest(c echo.Context) error {
	var lines []RawClaimLine
	if err := json.NewDecoder(c.Request().Body).Decode(&lines); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "Request body must be a JSON array of claim lines.").SetInternal(err)
	}

	summary, err := h.svc.Ingest(c.Request().Context(), lines)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListClaims(c echo.Context) error {
	p, err := pagination.FromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	items, total, err := h.svc.ListClaims(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ClaimsPage{Claims: items, TotalCount: total})
}

func (h *Handler) GetClaim(c echo.Context) error {
	var p claimIDParam
	if err := (&echo.DefaultBinder{}).BindPathParams(c, &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "claimId must be an integer.")
	}
	if err := c.Validate(&p); err != nil {
		if fes := validate.Fields(err); len(fes) > 0 {
			return echo.NewHTTPError(http.StatusBadRequest, fes[0].Field+" "+fes[0].Reason()+".")
		}
		return err
	}

	details, err := h.svc.GetClaim(c.Request().Context(), p.ClaimID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Given claimId:%d not found.", p.ClaimID))
		}
		return err
	}
	return c.JSON(http.StatusOK, details)
}

func (h *Handler) TopProviders(c echo.Context) error {
	items, err := h.svc.TopProviders(c.Request().Context(), DefaultTopProviders)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) mapError(c echo.Context, err error) error {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return c.JSON(http.StatusUnprocessableEntity, ValidationResponse{Detail: msgInvalidBatch, Errors: verrs})
	}
	return err
}
