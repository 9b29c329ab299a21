// Package intent разбирает токены действий кнопок и команды в закрытый набор намерений.
package intent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmeshcher/orderbot/internal/model"
)

var (
	// ErrUnknownIntent возвращается для токена с неизвестным глаголом.
	ErrUnknownIntent = errors.New("unknown intent")
	// ErrMalformedIntent возвращается, если аргументы токена не разбираются.
	ErrMalformedIntent = errors.New("malformed intent")
)

// Kind перечисляет поддерживаемые намерения.
type Kind int

const (
	Menu Kind = iota + 1
	Register
	CreateOrder
	ChooseCategory
	Cancel
	ShowCart
	DeleteItem
	ConfirmOrder
	Profile
	RequestWithdraw
	Withdraw
	GiveBonus
	ClearCart
)

var verbs = map[Kind]string{
	Menu:            "menu",
	Register:        "register",
	CreateOrder:     "create_order",
	ChooseCategory:  "type",
	Cancel:          "cancel",
	ShowCart:        "cart",
	DeleteItem:      "delete_order",
	ConfirmOrder:    "confirm_order",
	Profile:         "profile",
	RequestWithdraw: "request_withdraw",
	Withdraw:        "withdraw",
	GiveBonus:       "give_bonus",
	ClearCart:       "clear_cart",
}

var kinds = func() map[string]Kind {
	m := make(map[string]Kind, len(verbs))
	for k, v := range verbs {
		m[v] = k
	}
	return m
}()

func (k Kind) String() string {
	if v, ok := verbs[k]; ok {
		return v
	}
	return "unknown"
}

// Operator сообщает, что намерение доступно только оператору.
func (k Kind) Operator() bool {
	return k == Withdraw || k == GiveBonus
}

// Intent - разобранное действие с типизированными аргументами.
type Intent struct {
	Kind     Kind
	Category model.Category
	ItemID   int64
	UserID   int64
	Amount   int64
}

// Parse разбирает токен вида "<глагол> <аргументы...>".
func Parse(token string) (Intent, error) {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return Intent{}, fmt.Errorf("%w: empty token", ErrUnknownIntent)
	}

	kind, ok := kinds[fields[0]]
	if !ok {
		return Intent{}, fmt.Errorf("%w: %q", ErrUnknownIntent, fields[0])
	}
	args := fields[1:]

	in := Intent{Kind: kind}
	switch kind {
	case ChooseCategory:
		if len(args) != 1 {
			return Intent{}, malformed(token)
		}
		in.Category = model.Category(args[0])
		if !in.Category.Valid() {
			return Intent{}, malformed(token)
		}
	case DeleteItem:
		ids, err := parseIDs(args, 1)
		if err != nil {
			return Intent{}, malformed(token)
		}
		in.ItemID = ids[0]
	case Withdraw:
		ids, err := parseIDs(args, 1)
		if err != nil {
			return Intent{}, malformed(token)
		}
		in.UserID = ids[0]
	case GiveBonus:
		ids, err := parseIDs(args, 2)
		if err != nil || ids[1] <= 0 {
			return Intent{}, malformed(token)
		}
		in.UserID, in.Amount = ids[0], ids[1]
	default:
		if len(args) != 0 {
			return Intent{}, malformed(token)
		}
	}
	return in, nil
}

// Token возвращает токен действия для кнопки.
func (in Intent) Token() string {
	verb := in.Kind.String()
	switch in.Kind {
	case ChooseCategory:
		return verb + " " + string(in.Category)
	case DeleteItem:
		return verb + " " + strconv.FormatInt(in.ItemID, 10)
	case Withdraw:
		return verb + " " + strconv.FormatInt(in.UserID, 10)
	case GiveBonus:
		return verb + " " + strconv.FormatInt(in.UserID, 10) + " " + strconv.FormatInt(in.Amount, 10)
	default:
		return verb
	}
}

func parseIDs(args []string, n int) ([]int64, error) {
	if len(args) != n {
		return nil, ErrMalformedIntent
	}
	ids := make([]int64, n)
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, err
		}
		ids[i] = v
	}
	return ids, nil
}

func malformed(token string) error {
	return fmt.Errorf("%w: %q", ErrMalformedIntent, token)
}
