// Package validation собирает правила форм оформления на go-playground/validator.
package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const dateLayout = "2006-01-02"

// Validator проверяет структуры с тегами validate и превращает ошибки в domain.ValidationError.
type Validator struct {
	v *validator.Validate
}

// New регистрирует пользовательские теги: luhn, cpf, card_expiry, birthdate, min_age, trimmed_min.
// Имя поля в ошибке берётся из тега field, затем из json.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("field"); name != "" {
			return name
		}
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister(v.RegisterValidation("luhn", func(fl validator.FieldLevel) bool {
		return ValidLuhn(fl.Field().String())
	}))
	mustRegister(v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return ValidCPF(fl.Field().String())
	}))
	mustRegister(v.RegisterValidation("trimmed_min", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= n
	}))
	mustRegister(v.RegisterValidationCtx("card_expiry", func(ctx context.Context, fl validator.FieldLevel) bool {
		return ValidExpiry(fl.Field().String(), nowFrom(ctx))
	}))
	mustRegister(v.RegisterValidationCtx("birthdate", func(ctx context.Context, fl validator.FieldLevel) bool {
		born, err := time.Parse(dateLayout, fl.Field().String())
		if err != nil {
			return false
		}
		return !born.After(nowFrom(ctx))
	}))
	mustRegister(v.RegisterValidationCtx("min_age", func(ctx context.Context, fl validator.FieldLevel) bool {
		minAge, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		born, err := time.Parse(dateLayout, fl.Field().String())
		if err != nil {
			return false
		}
		return Age(born, nowFrom(ctx)) >= minAge
	}))

	return &Validator{v: v}
}

func mustRegister(err error) {
	if err != nil {
		panic(fmt.Sprintf("validation: register tag: %v", err))
	}
}

// Validate проверяет структуру на момент now. Возвращает nil, если ошибок нет.
func (val *Validator) Validate(now time.Time, s any) *domain.ValidationError {
	err := val.v.StructCtx(withNow(context.Background(), now), s)
	if err == nil {
		return nil
	}

	out := domain.NewValidationError()
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		out.Add("request", "is invalid")
		return out
	}
	for _, fe := range fieldErrs {
		out.Add(fieldKey(fe), message(fe))
	}
	return out
}

// fieldKey отрезает имя корневой структуры: "CardDetails.holder_name" -> "holder_name".
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "numeric":
		return "must contain only digits"
	case "min", "trimmed_min":
		return fmt.Sprintf("must have at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s characters", fe.Param())
	case "eqfield":
		return "does not match"
	case "luhn":
		return "is not a valid card number"
	case "cpf":
		return "is not a valid CPF"
	case "card_expiry":
		return "is invalid or expired"
	case "birthdate":
		return "must be a valid date"
	case "min_age":
		return fmt.Sprintf("you must be at least %s years old", fe.Param())
	default:
		return "is invalid"
	}
}

// Age считает полные годы на момент now.
func Age(born, now time.Time) int {
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	return years
}

type nowKey struct{}

func withNow(ctx context.Context, now time.Time) context.Context {
	return context.WithValue(ctx, nowKey{}, now)
}

func nowFrom(ctx context.Context) time.Time {
	if now, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return now
	}
	return time.Now()
}
