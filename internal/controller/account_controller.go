package controller

import (
	"net/http"
	"strconv"

	"github.com/cassiomorais/fintrack/internal/domain/account"
	"github.com/cassiomorais/fintrack/internal/domain/auth"
	"github.com/cassiomorais/fintrack/internal/serialize"
	"github.com/cassiomorais/fintrack/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type AccountController struct {
	accountService *service.AccountService
}

func NewAccountController(accountService *service.AccountService) *AccountController {
	return &AccountController{accountService: accountService}
}

func (h *AccountController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	accountType, err := account.ParseType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}

	acct, err := h.accountService.CreateAccount(r.Context(), auth.FromContext(r.Context()), service.CreateAccountRequest{
		Name:      req.Name,
		Type:      accountType,
		Balance:   string(req.Balance),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, serialize.FromAccount(acct))
}

func (h *AccountController) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.ListAccounts(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, serialize.FromAccounts(accounts))
}

func (h *AccountController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Error: "invalid account id", Code: "invalid_id"})
		return
	}

	acct, err := h.accountService.GetAccount(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, serialize.FromAccount(acct))
}

func (h *AccountController) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Error: "invalid account id", Code: "invalid_id"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := h.accountService.ListTransactions(r.Context(), auth.FromContext(r.Context()), id,
		service.Page{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, serialize.FromTransactions(txns))
}
