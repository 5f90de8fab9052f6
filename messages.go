package guard

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// LoginMessage carries the credentials of a login attempt.
type LoginMessage struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (m LoginMessage) Type() string { return "auth.login" }

// Validate will run validation rules
func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// RegisterMessage carries the profile of a new account. Profile holds any
// extra fields the backend accepts; they are sent at the top level of the
// request body.
type RegisterMessage struct {
	Name             string         `form:"name" json:"name"`
	Email            string         `form:"email" json:"email"`
	Password         string         `form:"password" json:"password"`
	ConfirmPassword  string         `form:"confirm_password" json:"confirm_password,omitempty"`
	Phone            string         `form:"phone_number" json:"phone_number,omitempty"`
	SubscriptionPlan string         `form:"subscription_plan" json:"subscription_plan,omitempty"`
	Profile          map[string]any `form:"-" json:"profile,omitempty"`
}

func (m RegisterMessage) Type() string { return "auth.register" }

// Validate will run validation rules
func (m RegisterMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&m.ConfirmPassword, validation.By(optionalEquals(m.Password))),
		validation.Field(&m.Phone, validation.Length(7, 20)),
	)
}

// Normalize trims the message and formats the phone number as E.164
// using region for numbers without a country code.
func (m RegisterMessage) Normalize(region string) (RegisterMessage, error) {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	m.Phone = strings.TrimSpace(m.Phone)

	if m.Phone == "" {
		return m, nil
	}

	phone, err := NormalizePhone(m.Phone, region)
	if err != nil {
		return m, validation.Errors{"phone_number": err}
	}
	m.Phone = phone
	return m, nil
}

// body is the JSON payload sent to the backend: core fields win over
// profile keys with the same name.
func (m RegisterMessage) body() map[string]any {
	out := make(map[string]any, len(m.Profile)+5)
	for k, v := range m.Profile {
		out[k] = v
	}
	out["name"] = m.Name
	out["email"] = m.Email
	out["password"] = m.Password
	if m.Phone != "" {
		out["phone_number"] = m.Phone
	}
	if m.SubscriptionPlan != "" {
		out["subscription_plan"] = m.SubscriptionPlan
	}
	return out
}

// NormalizePhone parses number and returns it in E.164 format.
func NormalizePhone(number, region string) (string, error) {
	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(number, strings.ToUpper(region))
	if err != nil {
		return "", errors.New("must be a valid phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("must be a valid phone number")
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func optionalEquals(str string) validation.RuleFunc {
	return func(value any) error {
		if s, _ := value.(string); s == "" {
			return nil
		}
		return ValidateStringEquals(str)(value)
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map suitable for views.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
