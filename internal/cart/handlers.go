package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/minicart-api/internal/common"
	"github.com/noah-isme/minicart-api/internal/pricing"
)

// Service is the cart behaviour exposed over HTTP.
type Service interface {
	Get(ctx context.Context) Cart
	ApplyItemQuantityChange(ctx context.Context, objectID string, qty int64) (Cart, error)
}

// Handler wires the cart engine to HTTP.
type Handler struct {
	Svc      Service
	Validate *validator.Validate
}

type itemPatch struct {
	ObjectID string `json:"object_id" validate:"required"`
	Qty      *int64 `json:"qty" validate:"required"`
}

// Get returns the current cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, h.Svc.Get(r.Context()))
}

// UpdateItem changes the quantity of one line item and returns the recalculated cart.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	var payload itemPatch
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	payload.ObjectID = strings.TrimSpace(payload.ObjectID)
	if err := h.validate().Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "missing object_id or qty", validationDetails(err))
		return
	}
	updated, err := h.Svc.ApplyItemQuantityChange(r.Context(), payload.ObjectID, *payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, updated)
}

func (h *Handler) validate() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return defaultValidator
}

var defaultValidator = NewValidator()

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unknown error", nil)
		return
	}
	if appErr, ok := common.AsAppError(err); ok {
		common.WriteAppError(w, appErr)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "item not found", nil)
	case errors.Is(err, pricing.ErrMalformedNumeric):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeMalformedNumeric, err.Error(), nil)
	case errors.Is(err, pricing.ErrInvariantViolation):
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart totals could not be computed", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, err.Error(), nil)
	}
}
