package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError is a checkout field that needs the customer's attention.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is the set of field problems found before submission.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return "checkout validation failed: " + strings.Join(msgs, "; ")
}

// For returns the message for field, or "".
func (v ValidationErrors) For(field string) string {
	for _, e := range v {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

// checkoutForm is the draft as seen by the validator.
type checkoutForm struct {
	Items       int    `validate:"gt=0"`
	Fulfillment string `validate:"oneof=pickup delivery"`
	Name        string `validate:"required,max=100"`
	Phone       string `validate:"required,storephone"`
	Email       string `validate:"omitempty,email"`
	City        string `validate:"required_if=Fulfillment delivery"`
	Area        string `validate:"required_if=Fulfillment delivery"`
	Street      string `validate:"required_if=Fulfillment delivery"`
	Block       string `validate:"required_if=Fulfillment delivery"`
	House       string `validate:"required_if=Fulfillment delivery"`
	SlotDate    string `validate:"required"`
	SlotLabel   string `validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("storephone", func(fl validator.FieldLevel) bool {
		code, number := SplitPhone(fl.Field().String())
		return PhoneValid(code, number)
	})
	return v
}

// Validate checks the draft fields required before payment.
func (a *Aggregator) Validate() error {
	d := a.Draft()
	return validateDraft(d)
}

func validateDraft(d Draft) error {
	form := checkoutForm{
		Items:       len(d.Items),
		Fulfillment: string(d.Fulfillment),
		Name:        d.CustomerName,
		Phone:       d.CustomerPhone,
		Email:       d.CustomerEmail,
		City:        strings.TrimSpace(d.Address.City),
		Area:        strings.TrimSpace(d.Address.Area),
		Street:      strings.TrimSpace(d.Address.Street),
		Block:       strings.TrimSpace(d.Address.Block),
		House:       strings.TrimSpace(d.Address.House),
		SlotDate:    d.Slot.Date,
		SlotLabel:   d.Slot.Label,
	}

	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: fieldMessage(fe, d)})
	}
	return out
}

var fieldLabels = map[string]string{
	"Items":       "Cart",
	"Fulfillment": "Order type",
	"Name":        "Name",
	"Phone":       "Phone",
	"Email":       "Email",
	"City":        "City",
	"Area":        "Area",
	"Street":      "Street",
	"Block":       "Block",
	"House":       "House",
	"SlotDate":    "Delivery date",
	"SlotLabel":   "Time slot",
}

func fieldMessage(fe validator.FieldError, d Draft) string {
	label := fieldLabels[fe.Field()]
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", label)
	case "gt":
		return "Your cart is empty"
	case "storephone":
		code, _ := SplitPhone(d.CustomerPhone)
		if c, ok := CountryFor(code); ok {
			return fmt.Sprintf("Phone must be at least %d digits for %s", c.Digits-3, c.Code)
		}
		return "Phone number is not valid"
	case "email":
		return "Email is not valid"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "oneof":
		return "Choose pickup or delivery"
	}
	return fmt.Sprintf("%s failed on %s validation", label, fe.Tag())
}
