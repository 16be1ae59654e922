package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/cassiomorais/fintrack/internal/domain/account"
	"github.com/cassiomorais/fintrack/internal/domain/auth"
	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/infrastructure/config"
	"github.com/cassiomorais/fintrack/internal/middleware"
	"github.com/cassiomorais/fintrack/internal/serialize"
	"github.com/cassiomorais/fintrack/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	AppTitle    = "FinTrack"
	AppSubtitle = "Tracking Day to Day expenses"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Accounts is what the pages need from the account service.
type Accounts interface {
	ListAccounts(ctx context.Context, sess auth.Session) ([]*account.Account, error)
	CreateAccount(ctx context.Context, sess auth.Session, req service.CreateAccountRequest) (*account.Account, error)
}

type Handler struct {
	accounts Accounts
	pages    map[string]*template.Template
	cfg      config.WebConfig
	logger   zerolog.Logger
}

// Page is the data every template receives; Content is page specific.
type Page struct {
	Title     string
	Subtitle  string
	Session   auth.Session
	SignInURL string
	Notice    *Notice
	Year      int
	Content   any
}

type dashboardContent struct {
	Accounts []serialize.Account
	Total    float64
	Form     *AccountForm
	Types    []account.AccountType
}

func NewHandler(accounts Accounts, cfg config.WebConfig, logger zerolog.Logger) (*Handler, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"index", "dashboard"} {
		t, err := template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return &Handler{
		accounts: accounts,
		pages:    pages,
		cfg:      cfg,
		logger:   logger.With().Str("component", "web").Logger(),
	}, nil
}

func (h *Handler) Mount(r chi.Router) {
	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/", h.Landing)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSessionRedirect(h.cfg.SignInURL))
		r.Get("/dashboard", h.Dashboard)
		r.Post("/dashboard/accounts", h.CreateAccount)
	})
}

func (h *Handler) Landing(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index", popFlash(w, r, h.cfg.SecureCookie), nil)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderDashboard(w, r, http.StatusOK, NewAccountForm(), popFlash(w, r, h.cfg.SecureCookie))
}

// CreateAccount handles the drawer form. Success redirects back to the
// dashboard with a flash notice; failures re-render the open drawer with the
// entered values.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	form := NewAccountForm()
	req, err := form.Submit(AccountValues{
		Name:      r.PostFormValue("name"),
		Type:      r.PostFormValue("type"),
		Balance:   r.PostFormValue("balance"),
		IsDefault: r.PostFormValue("isDefault") != "",
	})
	if err != nil {
		h.renderDashboard(w, r, http.StatusUnprocessableEntity, form, nil)
		return
	}

	if _, err := h.accounts.CreateAccount(r.Context(), auth.FromContext(r.Context()), req); err != nil {
		form.Fail(err)
		h.renderDashboard(w, r, statusFor(err), form, form.Notice)
		return
	}

	form.Succeed()
	setFlash(w, *form.Notice, h.cfg.SecureCookie)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) renderDashboard(w http.ResponseWriter, r *http.Request, status int, form *AccountForm, notice *Notice) {
	accounts, err := h.accounts.ListAccounts(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load dashboard")
		if notice == nil {
			notice = &Notice{Kind: NoticeError, Message: "Failed to load accounts"}
		}
		if status == http.StatusOK {
			status = statusFor(err)
		}
	}

	h.render(w, r, status, "dashboard", notice, dashboardContent{
		Accounts: serialize.FromAccounts(accounts),
		Total:    serialize.Float(account.TotalBalance(accounts)),
		Form:     form,
		Types:    account.Types,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, notice *Notice, content any) {
	var buf bytes.Buffer
	err := h.pages[page].ExecuteTemplate(&buf, "layout.html", Page{
		Title:     AppTitle,
		Subtitle:  AppSubtitle,
		Session:   auth.FromContext(r.Context()),
		SignInURL: h.cfg.SignInURL,
		Notice:    notice,
		Year:      time.Now().Year(),
		Content:   content,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("page", page).Msg("Template render failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func statusFor(err error) int {
	var validation *domainErrors.ValidationError
	switch {
	case errors.Is(err, domainErrors.ErrInvalidAmount), errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domainErrors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domainErrors.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainErrors.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
