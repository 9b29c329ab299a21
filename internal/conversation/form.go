package conversation

import (
	"errors"
	"strconv"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/validation"
)

// ErrAbort возвращается валидатором шага, чтобы завершить форму без сохранения.
var ErrAbort = errors.New("form aborted")

// FormKind определяет тип формы.
type FormKind string

const (
	FormRegistration FormKind = "registration"
	FormProduct      FormKind = "product"
	FormConfirmation FormKind = "confirmation"
)

// Имена полей, собираемых формами.
const (
	FieldName    = "name"
	FieldPhone   = "phone"
	FieldAddress = "address"
	FieldLink    = "link"
	FieldSize    = "size"
	FieldPrice   = "price"
	FieldConfirm = "confirm"
)

// Ответы с особым смыслом.
const (
	SkipReply    = "Пропустить"
	ConfirmReply = "Подтвердить"
	BackReply    = "Назад"
)

// Step описывает один шаг формы: какое поле он заполняет и как проверяет ответ.
type Step struct {
	Field    string
	Validate func(input string) (string, error)
}

// Variant определяет конкретную последовательность шагов. Выбирается один раз при старте формы.
type Variant string

const (
	VariantRegistration    Variant = "registration"
	VariantProduct         Variant = "product"
	VariantProductSizeless Variant = "product_sizeless"
	VariantConfirmation    Variant = "confirmation"
)

var variants = map[Variant][]Step{
	VariantRegistration: {
		{Field: FieldName, Validate: nameOrSkip},
		{Field: FieldPhone, Validate: validation.RequiredText},
		{Field: FieldAddress, Validate: validation.RequiredText},
	},
	VariantProduct: {
		{Field: FieldLink, Validate: validation.RequiredText},
		{Field: FieldSize, Validate: validation.RequiredText},
		{Field: FieldPrice, Validate: price},
	},
	VariantProductSizeless: {
		{Field: FieldLink, Validate: validation.RequiredText},
		{Field: FieldPrice, Validate: price},
	},
	VariantConfirmation: {
		{Field: FieldConfirm, Validate: confirmOrBack},
	},
}

// variantFor выбирает последовательность шагов для формы.
func variantFor(form FormKind, category model.Category) (Variant, error) {
	switch form {
	case FormRegistration:
		return VariantRegistration, nil
	case FormProduct:
		if !category.Valid() {
			return "", ErrUnknownForm
		}
		if category.Sizeless() {
			return VariantProductSizeless, nil
		}
		return VariantProduct, nil
	case FormConfirmation:
		return VariantConfirmation, nil
	default:
		return "", ErrUnknownForm
	}
}

func nameOrSkip(input string) (string, error) {
	if _, err := validation.OneOf(input, SkipReply); err == nil {
		return "", ErrAbort
	}
	return validation.RequiredText(input)
}

func price(input string) (string, error) {
	v, err := validation.Price(input)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}

func confirmOrBack(input string) (string, error) {
	if _, err := validation.OneOf(input, BackReply, "back"); err == nil {
		return "", ErrAbort
	}
	if _, err := validation.OneOf(input, ConfirmReply, "confirm"); err != nil {
		return "", err
	}
	return "confirm", nil
}
