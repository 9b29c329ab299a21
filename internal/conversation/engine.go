// Package conversation реализует пошаговые формы: регистрацию, добавление товара
// и подтверждение заказа. У пользователя не больше одной активной формы.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/model"
)

var (
	// ErrNoActiveForm возвращается, если у пользователя нет активной формы.
	ErrNoActiveForm = errors.New("no active form")
	// ErrUnknownForm возвращается для неизвестной формы или повреждённого состояния.
	ErrUnknownForm = errors.New("unknown form")
)

// Status описывает исход обработки ответа.
type Status int

const (
	// Advanced - форма ждёт ответа на шаг Result.Field.
	Advanced Status = iota + 1
	// Rejected - ответ не прошёл проверку, шаг не изменился.
	Rejected
	// Completed - форма заполнена, действие завершения выполнено.
	Completed
	// Aborted - форма прервана без побочных эффектов.
	Aborted
)

// Result сообщает вызывающему, что показать пользователю.
type Result struct {
	Status   Status
	Form     FormKind
	Category model.Category
	// Field - поле шага, который ждёт ответа.
	Field string
	// Position и Total дают счётчик шагов вида "2/3".
	Position int
	Total    int
	// Fields заполнено только для Completed.
	Fields map[string]string
	// Err - ошибка проверки для Rejected.
	Err error
}

// Completion выполняется, когда форма заполнена. Ошибка оставляет форму на последнем шаге.
type Completion func(ctx context.Context, userID int64, st State) error

// Engine ведёт формы пользователей поверх Store.
type Engine struct {
	store  Store
	hooks  map[FormKind]Completion
	logger *zap.Logger
}

// NewEngine создаёт движок форм.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		hooks:  make(map[FormKind]Completion),
		logger: logger,
	}
}

// OnComplete регистрирует действие завершения формы.
func (e *Engine) OnComplete(form FormKind, fn Completion) {
	e.hooks[form] = fn
}

// Start начинает форму, молча отбрасывая прежнюю незавершённую.
func (e *Engine) Start(ctx context.Context, userID int64, form FormKind, category model.Category) (Result, error) {
	variant, err := variantFor(form, category)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s %s", err, form, category)
	}

	st := State{
		Form:     form,
		Variant:  variant,
		Fields:   map[string]string{},
		Category: category,
	}
	if err := e.store.Put(ctx, userID, st); err != nil {
		return Result{}, fmt.Errorf("start form: %w", err)
	}

	e.logger.Debug("form started",
		zap.Int64("userID", userID),
		zap.String("form", string(form)),
		zap.String("variant", string(variant)),
	)
	return prompt(st, Advanced), nil
}

// Active возвращает активную форму пользователя.
func (e *Engine) Active(ctx context.Context, userID int64) (State, bool, error) {
	st, ok, err := e.store.Get(ctx, userID)
	if err != nil {
		return State{}, false, fmt.Errorf("load form: %w", err)
	}
	return st, ok, nil
}

// Cancel сбрасывает форму пользователя. Допустим в любом состоянии.
func (e *Engine) Cancel(ctx context.Context, userID int64) error {
	if err := e.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("cancel form: %w", err)
	}
	return nil
}

// Handle передаёт ответ пользователя текущему шагу активной формы.
func (e *Engine) Handle(ctx context.Context, userID int64, input string) (Result, error) {
	st, ok, err := e.Active(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, ErrNoActiveForm
	}

	step, ok := st.current()
	if !ok {
		_ = e.store.Delete(ctx, userID)
		return Result{}, fmt.Errorf("%w: variant %q step %d", ErrUnknownForm, st.Variant, st.Step)
	}

	value, err := step.Validate(input)
	switch {
	case errors.Is(err, ErrAbort):
		if err := e.Cancel(ctx, userID); err != nil {
			return Result{}, err
		}
		return Result{Status: Aborted, Form: st.Form, Category: st.Category}, nil
	case err != nil:
		res := prompt(st, Rejected)
		res.Err = err
		return res, nil
	}

	next := st.advance(step.Field, value)
	if !next.done() {
		if err := e.store.Put(ctx, userID, next); err != nil {
			return Result{}, fmt.Errorf("save form: %w", err)
		}
		return prompt(next, Advanced), nil
	}

	if hook, ok := e.hooks[next.Form]; ok {
		if err := hook(ctx, userID, next); err != nil {
			return Result{}, fmt.Errorf("complete %s: %w", next.Form, err)
		}
	}
	if err := e.Cancel(ctx, userID); err != nil {
		return Result{}, err
	}

	e.logger.Debug("form completed", zap.Int64("userID", userID), zap.String("form", string(next.Form)))
	return Result{
		Status:   Completed,
		Form:     next.Form,
		Category: next.Category,
		Fields:   next.Fields,
	}, nil
}

func prompt(st State, status Status) Result {
	step, _ := st.current()
	return Result{
		Status:   status,
		Form:     st.Form,
		Category: st.Category,
		Field:    step.Field,
		Position: st.Step + 1,
		Total:    len(st.steps()),
	}
}
