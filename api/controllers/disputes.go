package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/api/middleware"
	"github.com/nmarchetti-dev/tradepost-backend/api/responses"
	"github.com/nmarchetti-dev/tradepost-backend/api/validators"
	"github.com/nmarchetti-dev/tradepost-backend/internal/disputes"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/enums"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
)

type openDisputeRequest struct {
	OrderItemID   string  `json:"orderItemId" validate:"required,uuid"`
	ReasonCode    string  `json:"reasonCode" validate:"required"`
	Description   string  `json:"description" validate:"required"`
	PhotoProofURL *string `json:"photoProofUrl,omitempty" validate:"omitempty,url"`
}

type resolveDisputeRequest struct {
	Status         string  `json:"status" validate:"required"`
	ResolutionNote *string `json:"resolutionNote,omitempty"`
}

// OpenDispute files a buyer complaint against one order item.
func OpenDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		buyerID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing"))
			return
		}

		var req openDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		itemID, err := uuid.Parse(req.OrderItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order item id"))
			return
		}

		dispute, err := svc.Open(r.Context(), buyerID, disputes.OpenInput{
			OrderItemID:   itemID,
			ReasonCode:    req.ReasonCode,
			Description:   req.Description,
			PhotoProofURL: req.PhotoProofURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dispute)
	}
}

// ResolveDispute moves a dispute forward as the admin or the owning seller.
func ResolveDispute(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "disputes service unavailable"))
			return
		}

		actorID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing"))
			return
		}
		actorRole, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing"))
			return
		}

		disputeID, err := uuid.Parse(chi.URLParam(r, "disputeID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute id"))
			return
		}

		var req resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseDisputeStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute status"))
			return
		}

		dispute, err := svc.Resolve(r.Context(), actorID, actorRole, disputeID, disputes.ResolveInput{
			Status:         status,
			ResolutionNote: req.ResolutionNote,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dispute)
	}
}
