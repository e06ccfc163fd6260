package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/api/middleware"
	"github.com/nmarchetti-dev/tradepost-backend/api/responses"
	"github.com/nmarchetti-dev/tradepost-backend/api/validators"
	"github.com/nmarchetti-dev/tradepost-backend/internal/payouts"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
)

type markPaidOutRequest struct {
	OrderItemIDs []string `json:"orderItemIds" validate:"required,min=1,dive,uuid"`
	BatchID      string   `json:"batchId" validate:"required"`
}

// GetPendingPayouts lists the authenticated seller's payout-eligible items.
func GetPendingPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		sellerID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing"))
			return
		}

		items, err := svc.GetPendingForSeller(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// MarkPaidOut stamps a payout batch onto the submitted items. Operator
// only; the route guard enforces the admin role.
func MarkPaidOut(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		var req markPaidOutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemIDs := make([]uuid.UUID, 0, len(req.OrderItemIDs))
		for _, raw := range req.OrderItemIDs {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid order item id"))
				return
			}
			itemIDs = append(itemIDs, id)
		}

		result, err := svc.MarkPaidOut(r.Context(), itemIDs, req.BatchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
