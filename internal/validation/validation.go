// Package validation содержит функции проверки ответов пользователя в диалогах.
package validation

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrEmpty возвращается для пустого ответа.
	ErrEmpty = errors.New("empty input")
	// ErrNotPositiveInteger возвращается, если ответ не является целым положительным числом.
	ErrNotPositiveInteger = errors.New("input is not a positive integer")
	// ErrUnexpectedReply возвращается, если ответ не входит в список допустимых.
	ErrUnexpectedReply = errors.New("unexpected reply")
	// ErrPriceTooLarge возвращается для цены больше MaxPrice.
	ErrPriceTooLarge = errors.New("price is too large")
)

// MaxPrice - наибольшая цена товара в иностранной валюте, которую принимает бот.
const MaxPrice int64 = 10_000_000

// RequiredText обрезает пробелы и проверяет, что ответ не пуст.
func RequiredText(input string) (string, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// PositiveInteger разбирает цену: только десятичные цифры, значение больше нуля.
func PositiveInteger(input string) (int64, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return 0, ErrNotPositiveInteger
	}

	for _, ch := range text {
		if !unicode.IsDigit(ch) || ch > unicode.MaxASCII {
			return 0, ErrNotPositiveInteger
		}
	}

	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil || value <= 0 {
		return 0, ErrNotPositiveInteger
	}

	return value, nil
}

// Price разбирает цену товара: целое положительное число не больше MaxPrice.
func Price(input string) (int64, error) {
	value, err := PositiveInteger(input)
	if err != nil {
		return 0, err
	}
	if value > MaxPrice {
		return 0, ErrPriceTooLarge
	}
	return value, nil
}

// OneOf сравнивает ответ с допустимыми вариантами без учёта регистра
// и возвращает совпавший вариант в исходном написании.
func OneOf(input string, options ...string) (string, error) {
	text := strings.TrimSpace(input)
	for _, opt := range options {
		if strings.EqualFold(text, opt) {
			return opt, nil
		}
	}
	return "", ErrUnexpectedReply
}
