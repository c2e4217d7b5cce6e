package http

import (
	"encoding/json"
	"net/http"

	"github.com/SialouWebServices/Saas/internal/domain/disbursement"
	"github.com/SialouWebServices/Saas/internal/handler/http/response"
)

type DisbursementHandler interface {
	Preview(w http.ResponseWriter, r *http.Request)
	Confirm(w http.ResponseWriter, r *http.Request)
	Reconcile(w http.ResponseWriter, r *http.Request)
	Balances(w http.ResponseWriter, r *http.Request)
}

type disbursementHandlerImpl struct {
	disbursementService disbursement.DisbursementService
}

func NewDisbursementHandler(disbursementService disbursement.DisbursementService) DisbursementHandler {
	return &disbursementHandlerImpl{disbursementService: disbursementService}
}

func (h *disbursementHandlerImpl) Preview(w http.ResponseWriter, r *http.Request) {
	var req disbursement.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.disbursementService.Preview(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// Confirm answers 200 even when some transfers failed; the body carries the
// per-payslip outcome.
func (h *disbursementHandlerImpl) Confirm(w http.ResponseWriter, r *http.Request) {
	var req disbursement.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.disbursementService.Confirm(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Disbursement processed", result)
}

func (h *disbursementHandlerImpl) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.disbursementService.ReconcilePending(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *disbursementHandlerImpl) Balances(w http.ResponseWriter, r *http.Request) {
	result, err := h.disbursementService.ProviderBalances(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}
