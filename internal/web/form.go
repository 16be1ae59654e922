package web

import (
	"errors"
	"strings"

	"github.com/cassiomorais/fintrack/internal/domain/account"
	domainErrors "github.com/cassiomorais/fintrack/internal/domain/errors"
	"github.com/cassiomorais/fintrack/internal/service"
	"github.com/go-playground/validator/v10"
)

// FormState is the lifecycle of one account creation attempt.
type FormState string

const (
	StateIdle       FormState = "idle"
	StateSubmitting FormState = "submitting"
	StateSuccess    FormState = "success"
	StateError      FormState = "error"
)

const (
	MsgAccountCreated = "Account created successfully!"
	MsgCreateFailed   = "Failed to create account"
)

var (
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrInvalidForm      = errors.New("form has invalid fields")
)

var formValidate = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New()
	// amount: a storable balance that is not negative.
	v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, err := account.ParseBalance(fl.Field().String())
		return err == nil && !d.IsNegative()
	})
	return v
}

// AccountValues are the fields of the account creation form.
type AccountValues struct {
	Name      string `validate:"required,max=100"`
	Type      string `validate:"required,oneof=CURRENT SAVINGS"`
	Balance   string `validate:"required,amount"`
	IsDefault bool
}

func DefaultValues() AccountValues {
	return AccountValues{Type: string(account.TypeCurrent)}
}

// AccountForm drives the account creation drawer. Submit moves an idle form
// to submitting once local validation passes; Succeed and Fail resolve it.
type AccountForm struct {
	State  FormState
	Values AccountValues
	Errors map[string]string
	Open   bool
	Notice *Notice
}

func NewAccountForm() *AccountForm {
	return &AccountForm{State: StateIdle, Values: DefaultValues()}
}

func (f *AccountForm) Submitting() bool {
	return f.State == StateSubmitting
}

// Submit validates v and, when it is acceptable, returns the request to send.
// Field problems leave the state untouched and are reported in f.Errors.
func (f *AccountForm) Submit(v AccountValues) (service.CreateAccountRequest, error) {
	if f.Submitting() {
		return service.CreateAccountRequest{}, ErrSubmitInProgress
	}

	v.Name = strings.TrimSpace(v.Name)
	v.Balance = strings.TrimSpace(v.Balance)
	f.Values = v
	f.Open = true

	if errs := fieldErrors(v); len(errs) > 0 {
		f.Errors = errs
		return service.CreateAccountRequest{}, ErrInvalidForm
	}

	f.Errors = nil
	f.Notice = nil
	f.State = StateSubmitting
	return service.CreateAccountRequest{
		Name:      v.Name,
		Type:      account.AccountType(v.Type),
		Balance:   v.Balance,
		IsDefault: v.IsDefault,
	}, nil
}

// Succeed resets the values, closes the drawer and queues the success notice.
func (f *AccountForm) Succeed() {
	f.State = StateSuccess
	f.Values = DefaultValues()
	f.Errors = nil
	f.Open = false
	f.Notice = &Notice{Kind: NoticeSuccess, Message: MsgAccountCreated}
}

// Fail keeps the entered values and the drawer open and queues an error
// notice carrying the server's message.
func (f *AccountForm) Fail(err error) {
	f.State = StateError
	f.Open = true
	f.Notice = &Notice{Kind: NoticeError, Message: UserMessage(err)}
}

// UserMessage is the text shown to a person for a failed request.
func UserMessage(err error) string {
	var validation *domainErrors.ValidationError
	var domainErr *domainErrors.DomainError
	switch {
	case err == nil:
		return MsgCreateFailed
	case errors.Is(err, domainErrors.ErrInvalidAmount):
		return "Invalid amount"
	case errors.Is(err, domainErrors.ErrUnauthenticated):
		return "Unauthorized"
	case errors.Is(err, domainErrors.ErrUserNotFound):
		return "User not found"
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &domainErr):
		return domainErr.Message
	default:
		return MsgCreateFailed
	}
}

var fieldMessages = map[string]map[string]string{
	"Name":    {"required": "Name is required", "max": "Name is too long"},
	"Type":    {"required": "Account type is required", "oneof": "Invalid account type"},
	"Balance": {"required": "Initial balance is required", "amount": "Balance must be a valid non-negative amount"},
}

func fieldErrors(v AccountValues) map[string]string {
	err := formValidate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"Form": err.Error()}
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		msg, ok := fieldMessages[fe.Field()][fe.Tag()]
		if !ok {
			msg = fe.Field() + " is invalid"
		}
		out[fe.Field()] = msg
	}
	return out
}
