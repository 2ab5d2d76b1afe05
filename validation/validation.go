// Package validation checks the checkout form before a payment is attempted.
package validation

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"storefront-checkout/models"
)

// Form is everything the validator looks at.
type Form struct {
	Customer       models.CustomerInfo
	Shipping       models.Address
	Billing        models.Address
	SameAsShipping bool
	CartItemCount  int
}

// billingMode selects which rows of the rule table apply.
type billingMode int

const (
	anyBilling billingMode = iota
	separateBilling
)

type check func(v *validator.Validate, value string) bool

type rule struct {
	mode    billingMode
	value   func(f Form) string
	check   check
	message string
}

var usZipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

var validate = newValidator()

// newValidator registers the us_zip tag. The stock US postcode tag also
// accepts a space before the +4 digits; only the hyphenated form is allowed.
func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("us_zip", func(fl validator.FieldLevel) bool {
		return usZipPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

func required(_ *validator.Validate, value string) bool {
	return strings.TrimSpace(value) != ""
}

func email(v *validator.Validate, value string) bool {
	return v.Var(strings.TrimSpace(value), "required,email") == nil
}

// usZip accepts 12345 and 12345-6789. Blank values are left to the
// required rule so they are reported once.
func usZip(v *validator.Validate, value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || v.Var(value, "us_zip") == nil
}

var rules = []rule{
	{anyBilling, func(f Form) string { return f.Customer.FirstName }, required, "First name is required"},
	{anyBilling, func(f Form) string { return f.Customer.LastName }, required, "Last name is required"},
	{anyBilling, func(f Form) string { return f.Customer.Email }, email, "A valid email address is required"},
	{anyBilling, func(f Form) string { return f.Customer.Phone }, required, "Phone number is required"},

	{anyBilling, func(f Form) string { return f.Shipping.Address }, required, "Shipping address is required"},
	{anyBilling, func(f Form) string { return f.Shipping.City }, required, "Shipping city is required"},
	{anyBilling, func(f Form) string { return f.Shipping.State }, required, "Shipping state is required"},
	{anyBilling, func(f Form) string { return f.Shipping.ZipCode }, required, "Shipping ZIP code is required"},
	{anyBilling, func(f Form) string { return f.Shipping.ZipCode }, usZip, "Shipping ZIP code must be 5 digits or ZIP+4"},

	{separateBilling, func(f Form) string { return f.Billing.Address }, required, "Billing address is required"},
	{separateBilling, func(f Form) string { return f.Billing.City }, required, "Billing city is required"},
	{separateBilling, func(f Form) string { return f.Billing.State }, required, "Billing state is required"},
	{separateBilling, func(f Form) string { return f.Billing.ZipCode }, required, "Billing ZIP code is required"},
	{separateBilling, func(f Form) string { return f.Billing.ZipCode }, usZip, "Billing ZIP code must be 5 digits or ZIP+4"},
}

// CartEmptyMessage is reported when the cart holds no items.
const CartEmptyMessage = "Your cart is empty"

// Validate returns every problem with the form, or nil when it is valid.
// It has no side effects and may be called as often as needed.
func Validate(f Form) []string {
	var errs []string
	for _, r := range rules {
		if r.mode == separateBilling && f.SameAsShipping {
			continue
		}
		if !r.check(validate, r.value(f)) {
			errs = append(errs, r.message)
		}
	}
	if f.CartItemCount <= 0 {
		errs = append(errs, CartEmptyMessage)
	}
	return errs
}
