package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mmeshcher/orderbot/internal/model"
)

func setupPostgres(t *testing.T) *PostgresRepository {
	t.Helper()

	if os.Getenv("INTEGRATION") != "1" {
		t.Skip("set INTEGRATION=1 to run PostgreSQL tests")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "orderbot",
			"POSTGRES_USER":     "orderbot",
			"POSTGRES_PASSWORD": "orderbot",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(3 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://orderbot:orderbot@%s:%s/orderbot?sslmode=disable", host, port.Port())

	var repo *PostgresRepository
	for range 10 {
		repo, err = NewPostgresRepository(dsn)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to connect after retries")
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestPostgresRepository(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	t.Run("ensure user keeps first inviter", func(t *testing.T) {
		inviter := int64(100)
		u, created, err := repo.EnsureUser(ctx, 1, &inviter)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, model.RoleUser, u.Role)

		other := int64(200)
		u, created, err = repo.EnsureUser(ctx, 1, &other)
		require.NoError(t, err)
		assert.False(t, created)
		require.NotNil(t, u.InviterID)
		assert.Equal(t, int64(100), *u.InviterID)
	})

	t.Run("profile and role", func(t *testing.T) {
		p := model.Profile{FullName: "Иван Петров", Phone: "+79990000000", Address: "Москва"}
		require.NoError(t, repo.UpdateProfile(ctx, 1, p))
		require.NoError(t, repo.SetRole(ctx, 1, model.RoleAdmin))

		u, err := repo.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, p, u.Profile)
		assert.Equal(t, model.RoleAdmin, u.Role)

		_, err = repo.GetUser(ctx, 999)
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.ErrorIs(t, repo.UpdateProfile(ctx, 999, p), ErrUserNotFound)
	})

	t.Run("balance", func(t *testing.T) {
		balance, err := repo.AddBonus(ctx, 1, 15)
		require.NoError(t, err)
		assert.Equal(t, int64(15), balance)

		previous, err := repo.ResetBalance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(15), previous)

		_, err = repo.ResetBalance(ctx, 999)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("cart items", func(t *testing.T) {
		_, _, err := repo.EnsureUser(ctx, 2, nil)
		require.NoError(t, err)

		id1, err := repo.AddCartItem(ctx, model.CartItem{BuyerID: 1, Link: "https://a", Size: "42", Price: 1000})
		require.NoError(t, err)
		_, err = repo.AddCartItem(ctx, model.CartItem{BuyerID: 1, Link: "https://b", Size: model.SizeOneSize, Price: 500})
		require.NoError(t, err)
		_, err = repo.AddCartItem(ctx, model.CartItem{BuyerID: 2, Link: "https://c", Size: "M", Price: 300})
		require.NoError(t, err)

		_, err = repo.AddCartItem(ctx, model.CartItem{BuyerID: 999, Link: "https://d", Size: "M", Price: 1})
		assert.ErrorIs(t, err, ErrUserNotFound)

		items, err := repo.ListCartItems(ctx, 1)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "https://a", items[0].Link)
		assert.Equal(t, "https://b", items[1].Link)

		require.NoError(t, repo.DeleteCartItem(ctx, 1, id1))
		require.NoError(t, repo.DeleteCartItem(ctx, 1, id1))

		items, err = repo.ListCartItems(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, items, 1)

		require.NoError(t, repo.DeleteCartItems(ctx, 1))
		items, err = repo.ListCartItems(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, items)

		items, err = repo.ListCartItems(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})
}
