package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
)

const (
	moneyScale    int32 = 2
	quantityScale int32 = 4
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// check runs struct validation and reports the first failing field.
func (c *core) check(req any) error {
	err := c.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		reason := "must satisfy " + fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return store.Invalid(field, reason)
	}
	return store.Invalid("", err.Error())
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyScale)
}

func requireCents(field string, amount decimal.Decimal) error {
	if !amount.Equal(round2(amount)) {
		return store.Invalid(field, "must have at most 2 decimal places")
	}
	return nil
}

// requireQuantityScale keeps quantities within what the stock columns store,
// so both backends agree on the value.
func requireQuantityScale(field string, qty decimal.Decimal) error {
	if !qty.Equal(qty.Round(quantityScale)) {
		return store.Invalid(field, fmt.Sprintf("must have at most %d decimal places", quantityScale))
	}
	return nil
}

func requireID(field string, id string) error {
	if strings.TrimSpace(id) == "" {
		return store.Invalid(field, "is required")
	}
	return nil
}
