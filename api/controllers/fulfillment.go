package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nmarchetti-dev/tradepost-backend/api/middleware"
	"github.com/nmarchetti-dev/tradepost-backend/api/responses"
	"github.com/nmarchetti-dev/tradepost-backend/api/validators"
	"github.com/nmarchetti-dev/tradepost-backend/internal/fulfillment"
	pkgerrors "github.com/nmarchetti-dev/tradepost-backend/pkg/errors"
	"github.com/nmarchetti-dev/tradepost-backend/pkg/logger"
)

type shipItemRequest struct {
	Carrier      string  `json:"carrier,omitempty"`
	TrackingCode string  `json:"trackingCode,omitempty"`
	Note         *string `json:"note,omitempty"`
}

type deliverItemRequest struct {
	ProofURL *string `json:"proofUrl,omitempty" validate:"omitempty,url"`
}

type issueItemRequest struct {
	Note *string `json:"note,omitempty"`
}

func sellerIdentity(r *http.Request) (uuid.UUID, error) {
	sellerID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	return sellerID, nil
}

func itemParam(r *http.Request) (uuid.UUID, error) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id")
	}
	return itemID, nil
}

// ShipItem stamps carrier details and moves a packed item to shipped.
func ShipItem(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		sellerID, err := sellerIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := itemParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req shipItemRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		item, err := svc.MarkShipped(r.Context(), itemID, sellerID, fulfillment.ShipInput{
			Carrier:      req.Carrier,
			TrackingCode: req.TrackingCode,
			Note:         req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// DeliverItem moves a shipped item to delivered, optionally with proof.
func DeliverItem(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		sellerID, err := sellerIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := itemParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req deliverItemRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		item, err := svc.MarkDelivered(r.Context(), itemID, sellerID, fulfillment.DeliverInput{ProofURL: req.ProofURL})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// RaiseItemIssue flags an item the seller cannot fulfill cleanly.
func RaiseItemIssue(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		sellerID, err := sellerIdentity(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := itemParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req issueItemRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		item, err := svc.MarkIssue(r.Context(), itemID, sellerID, fulfillment.IssueInput{Note: req.Note})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}
