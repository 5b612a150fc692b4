package order

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/example/storefront/internal/crud"
	"github.com/example/storefront/internal/model"
)

// ShippingForm is the checkout form: where to deliver and how to pay
type ShippingForm struct {
	Name          string              `json:"shipping_name"`
	Email         string              `json:"shipping_email"`
	Phone         string              `json:"shipping_phone"`
	Address       string              `json:"shipping_address"`
	City          string              `json:"shipping_city"`
	Region        string              `json:"shipping_region"`
	PostalCode    string              `json:"shipping_postal_code"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	Notes         string              `json:"notes"`
}

// Normalize trims every field and canonicalizes email and payment method
func (f *ShippingForm) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.Phone = strings.TrimSpace(f.Phone)
	f.Address = strings.TrimSpace(f.Address)
	f.City = strings.TrimSpace(f.City)
	f.Region = strings.TrimSpace(f.Region)
	f.PostalCode = strings.TrimSpace(f.PostalCode)
	f.PaymentMethod = model.PaymentMethod(strings.ToUpper(strings.TrimSpace(string(f.PaymentMethod))))
	f.Notes = strings.TrimSpace(f.Notes)
}

// Validate returns a *crud.ValidationError listing every bad field
func (f *ShippingForm) Validate() error {
	v := crud.NewValidationError()

	required(v, "shipping_name", f.Name, 200)
	required(v, "shipping_phone", f.Phone, 20)
	required(v, "shipping_address", f.Address, 255)
	required(v, "shipping_city", f.City, 100)
	optional(v, "shipping_region", f.Region, 100)
	optional(v, "shipping_postal_code", f.PostalCode, 10)

	required(v, "shipping_email", f.Email, 254)
	if f.Email != "" {
		if addr, err := mail.ParseAddress(f.Email); err != nil || addr.Address != f.Email {
			v.Add("shipping_email", "enter a valid email address")
		}
	}

	if f.PaymentMethod == "" {
		v.Add("payment_method", "this field is required")
	} else if !validPaymentMethod(f.PaymentMethod) {
		v.Add("payment_method", "select a valid payment method")
	}

	return v.Err()
}

func required(v *crud.ValidationError, field, value string, max int) {
	if value == "" {
		v.Add(field, "this field is required")
		return
	}
	optional(v, field, value, max)
}

func optional(v *crud.ValidationError, field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		v.Add(field, "value is too long")
	}
}

func validPaymentMethod(m model.PaymentMethod) bool {
	for _, known := range model.PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

func (f *ShippingForm) Shipping() model.Shipping {
	return model.Shipping{
		Name:       f.Name,
		Email:      f.Email,
		Phone:      f.Phone,
		Address:    f.Address,
		City:       f.City,
		Region:     f.Region,
		PostalCode: f.PostalCode,
	}
}

// Prefill builds the initial checkout form from the account and its profile
func Prefill(account *model.Account, profile *model.Profile) ShippingForm {
	var f ShippingForm
	if account != nil {
		f.Name = account.FullName()
		f.Email = account.Email
	}
	if profile != nil {
		f.Phone = profile.Phone
		f.Address = profile.Address
		f.City = profile.City
		f.Region = profile.Region
		f.PostalCode = profile.PostalCode
	}
	return f
}
