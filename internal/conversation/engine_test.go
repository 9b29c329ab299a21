package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderbot/internal/model"
	"github.com/mmeshcher/orderbot/internal/validation"
)

type completion struct {
	userID int64
	state  State
}

// recorder запоминает вызовы действий завершения.
type recorder struct {
	calls []completion
	err   error
}

func (r *recorder) hook(ctx context.Context, userID int64, st State) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, completion{userID: userID, state: st})
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e := NewEngine(NewMemoryStore(), zap.NewNop())
	for _, f := range []FormKind{FormRegistration, FormProduct, FormConfirmation} {
		e.OnComplete(f, rec.hook)
	}
	return e, rec
}

func feed(t *testing.T, e *Engine, userID int64, inputs ...string) Result {
	t.Helper()
	var res Result
	for _, in := range inputs {
		var err error
		res, err = e.Handle(context.Background(), userID, in)
		require.NoError(t, err, in)
	}
	return res
}

func TestRegistration_Completes(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	res, err := e.Start(ctx, 1, FormRegistration, "")
	require.NoError(t, err)
	assert.Equal(t, Advanced, res.Status)
	assert.Equal(t, FieldName, res.Field)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, 3, res.Total)

	res = feed(t, e, 1, "  Иван Петров ")
	assert.Equal(t, FieldPhone, res.Field)
	assert.Equal(t, 2, res.Position)

	res = feed(t, e, 1, "+79990000000", "Москва, Тверская 1")
	assert.Equal(t, Completed, res.Status)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, int64(1), rec.calls[0].userID)
	assert.Equal(t, map[string]string{
		FieldName:    "Иван Петров",
		FieldPhone:   "+79990000000",
		FieldAddress: "Москва, Тверская 1",
	}, rec.calls[0].state.Fields)

	_, active, err := e.Active(ctx, 1)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRegistration_SkipAborts(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	_, err := e.Start(ctx, 1, FormRegistration, "")
	require.NoError(t, err)

	res := feed(t, e, 1, "пропустить")
	assert.Equal(t, Aborted, res.Status)
	assert.Empty(t, rec.calls)

	_, active, err := e.Active(ctx, 1)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRegistration_EmptyInputRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Start(ctx, 1, FormRegistration, "")
	require.NoError(t, err)
	feed(t, e, 1, "Иван")

	res := feed(t, e, 1, "   ")
	assert.Equal(t, Rejected, res.Status)
	assert.ErrorIs(t, res.Err, validation.ErrEmpty)
	assert.Equal(t, FieldPhone, res.Field)

	st, active, err := e.Active(ctx, 1)
	require.NoError(t, err)
	require.True(t, active)
	assert.Equal(t, 1, st.Step)
	assert.NotContains(t, st.Fields, FieldPhone)
}

func TestProduct_HugePriceRejected(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	_, err := e.Start(ctx, 1, FormProduct, model.CategorySneakers)
	require.NoError(t, err)
	feed(t, e, 1, "https://shop/item/1", "42")

	for _, bad := range []string{"9223372036854775807", "1000000000000000000", "10000001"} {
		res := feed(t, e, 1, bad)
		assert.Equal(t, Rejected, res.Status, bad)
		assert.Equal(t, FieldPrice, res.Field)
		assert.ErrorIs(t, res.Err, validation.ErrPriceTooLarge)
	}
	assert.Empty(t, rec.calls)

	res := feed(t, e, 1, "10000000")
	assert.Equal(t, Completed, res.Status)
}

func TestProduct_NonNumericPriceRejected(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	_, err := e.Start(ctx, 1, FormProduct, model.CategorySneakers)
	require.NoError(t, err)
	feed(t, e, 1, "https://shop/item/1", "42")

	before, _, err := e.Active(ctx, 1)
	require.NoError(t, err)

	for _, bad := range []string{"abc", "12.5", "-3", "0", "", "１００"} {
		res := feed(t, e, 1, bad)
		assert.Equal(t, Rejected, res.Status, bad)
		assert.Equal(t, FieldPrice, res.Field)
		assert.ErrorIs(t, res.Err, validation.ErrNotPositiveInteger)
	}

	after, _, err := e.Active(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, rec.calls)

	res := feed(t, e, 1, " 1000 ")
	assert.Equal(t, Completed, res.Status)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "1000", rec.calls[0].state.Fields[FieldPrice])
	assert.Equal(t, "42", rec.calls[0].state.Fields[FieldSize])
	assert.Equal(t, model.CategorySneakers, rec.calls[0].state.Category)
}

func TestProduct_SizelessSkipsSize(t *testing.T) {
	for _, category := range []model.Category{model.CategoryTech, model.CategoryOneSize} {
		t.Run(string(category), func(t *testing.T) {
			ctx := context.Background()
			e, rec := newTestEngine(t)

			res, err := e.Start(ctx, 1, FormProduct, category)
			require.NoError(t, err)
			assert.Equal(t, 2, res.Total)

			res = feed(t, e, 1, "https://shop/item/2")
			assert.Equal(t, FieldPrice, res.Field)
			assert.Equal(t, 2, res.Position)

			res = feed(t, e, 1, "500")
			assert.Equal(t, Completed, res.Status)
			require.Len(t, rec.calls, 1)
			assert.NotContains(t, rec.calls[0].state.Fields, FieldSize)
		})
	}
}

func TestProduct_UnknownCategory(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Start(context.Background(), 1, FormProduct, "hats")
	assert.ErrorIs(t, err, ErrUnknownForm)
}

func TestConfirmation(t *testing.T) {
	ctx := context.Background()

	t.Run("other input re-prompts", func(t *testing.T) {
		e, rec := newTestEngine(t)
		_, err := e.Start(ctx, 1, FormConfirmation, "")
		require.NoError(t, err)

		res := feed(t, e, 1, "может быть")
		assert.Equal(t, Rejected, res.Status)
		assert.ErrorIs(t, res.Err, validation.ErrUnexpectedReply)
		assert.Empty(t, rec.calls)

		_, active, err := e.Active(ctx, 1)
		require.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("back aborts", func(t *testing.T) {
		e, rec := newTestEngine(t)
		_, err := e.Start(ctx, 1, FormConfirmation, "")
		require.NoError(t, err)

		res := feed(t, e, 1, BackReply)
		assert.Equal(t, Aborted, res.Status)
		assert.Empty(t, rec.calls)
	})

	t.Run("confirm completes", func(t *testing.T) {
		e, rec := newTestEngine(t)
		_, err := e.Start(ctx, 1, FormConfirmation, "")
		require.NoError(t, err)

		res := feed(t, e, 1, "подтвердить")
		assert.Equal(t, Completed, res.Status)
		require.Len(t, rec.calls, 1)
		assert.Equal(t, FormConfirmation, rec.calls[0].state.Form)
	})
}

func TestCancel_FromAnyStepLeavesCleanSlate(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	for steps := 0; steps < 3; steps++ {
		_, err := e.Start(ctx, 1, FormProduct, model.CategoryTop)
		require.NoError(t, err)
		feed(t, e, 1, []string{"https://shop/item", "M", "100"}[:steps]...)

		require.NoError(t, e.Cancel(ctx, 1))
		_, active, err := e.Active(ctx, 1)
		require.NoError(t, err)
		assert.False(t, active)

		res, err := e.Start(ctx, 1, FormProduct, model.CategoryTop)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Position)
		st, _, err := e.Active(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, st.Fields)
		require.NoError(t, e.Cancel(ctx, 1))
	}

	// отмена без активной формы тоже допустима
	require.NoError(t, e.Cancel(ctx, 1))
	assert.Empty(t, rec.calls)
}

func TestStart_OverwritesStaleForm(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Start(ctx, 1, FormRegistration, "")
	require.NoError(t, err)
	feed(t, e, 1, "Иван", "+7999")

	_, err = e.Start(ctx, 1, FormProduct, model.CategoryBoots)
	require.NoError(t, err)

	st, active, err := e.Active(ctx, 1)
	require.NoError(t, err)
	require.True(t, active)
	assert.Equal(t, FormProduct, st.Form)
	assert.Equal(t, 0, st.Step)
	assert.Empty(t, st.Fields)
}

func TestHandle_NoActiveForm(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Handle(context.Background(), 1, "hello")
	assert.ErrorIs(t, err, ErrNoActiveForm)
}

func TestHandle_CompletionErrorKeepsLastStep(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)
	rec.err = errors.New("store unavailable")

	_, err := e.Start(ctx, 1, FormProduct, model.CategoryTech)
	require.NoError(t, err)
	feed(t, e, 1, "https://shop/item")

	_, err = e.Handle(ctx, 1, "300")
	require.ErrorIs(t, err, rec.err)

	st, active, err := e.Active(ctx, 1)
	require.NoError(t, err)
	require.True(t, active)
	assert.Equal(t, 1, st.Step)

	rec.err = nil
	res := feed(t, e, 1, "300")
	assert.Equal(t, Completed, res.Status)
}

func TestUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestEngine(t)

	_, err := e.Start(ctx, 1, FormRegistration, "")
	require.NoError(t, err)
	_, err = e.Start(ctx, 2, FormProduct, model.CategoryTech)
	require.NoError(t, err)

	feed(t, e, 1, "Иван")
	feed(t, e, 2, "https://shop/item")
	res := feed(t, e, 2, "10")
	assert.Equal(t, Completed, res.Status)

	st, active, err := e.Active(ctx, 1)
	require.NoError(t, err)
	require.True(t, active)
	assert.Equal(t, map[string]string{FieldName: "Иван"}, st.Fields)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, int64(2), rec.calls[0].userID)
}
