package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/SialouWebServices/Saas/internal/domain/declaration"
	"github.com/SialouWebServices/Saas/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type DeclarationHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Validate(w http.ResponseWriter, r *http.Request)
	Submit(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

type declarationHandlerImpl struct {
	declarationService declaration.DeclarationService
}

func NewDeclarationHandler(declarationService declaration.DeclarationService) DeclarationHandler {
	return &declarationHandlerImpl{declarationService: declarationService}
}

func (h *declarationHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	var req declaration.CreateFilingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.declarationService.CreateFiling(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "CNPS filing created", result)
}

func (h *declarationHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.declarationService.GetFiling(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *declarationHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter declaration.FilingFilter

	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if year, err := strconv.Atoi(query.Get("period_year")); err == nil {
		filter.PeriodYear = &year
	}

	result, err := h.declarationService.ListFilings(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMeta(w, result.Data, &response.Meta{
		Page:       result.Page,
		Limit:      result.Limit,
		TotalItems: result.TotalCount,
		TotalPages: result.TotalPages,
	})
}

func (h *declarationHandlerImpl) Validate(w http.ResponseWriter, r *http.Request) {
	result, err := h.declarationService.ValidateFiling(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "CNPS filing validated", result)
}

func (h *declarationHandlerImpl) Submit(w http.ResponseWriter, r *http.Request) {
	result, err := h.declarationService.SubmitFiling(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "CNPS filing submitted", result)
}

func (h *declarationHandlerImpl) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.declarationService.DeleteFiling(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "CNPS filing deleted", nil)
}
