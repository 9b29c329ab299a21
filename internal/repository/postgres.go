// Package repository содержит хранилища пользователей и корзин: PostgreSQL и in-memory.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/orderbot/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound возвращается, если пользователь не найден.
var ErrUserNotFound = errors.New("user not found")

// PostgresRepository предоставляет доступ к пользователям и корзинам в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// withRetry повторяет операции над балансом при конфликтах сериализации и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !retryable(err) || i == len(retryDelays) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelays[i]):
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const userColumns = `id, role, full_name, phone, address, balance, inviter_id`

func scanUser(row pgx.Row) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &role, &u.Profile.FullName, &u.Profile.Phone, &u.Profile.Address, &u.Balance, &u.InviterID)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	return u, nil
}

// EnsureUser атомарно создаёт пользователя с ролью user, если его ещё нет.
// Пригласивший записывается только при создании и никогда не перезаписывается.
func (r *PostgresRepository) EnsureUser(ctx context.Context, id int64, inviterID *int64) (model.User, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.User{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO users (id, role, inviter_id) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		id, string(model.RoleUser), inviterID,
	)
	if err != nil {
		return model.User{}, false, fmt.Errorf("insert user: %w", err)
	}
	created := tag.RowsAffected() == 1

	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return model.User{}, false, fmt.Errorf("select user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.User{}, false, fmt.Errorf("commit tx: %w", err)
	}

	return u, created, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetRole меняет роль пользователя.
func (r *PostgresRepository) SetRole(ctx context.Context, id int64, role model.Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, string(role))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile записывает все поля профиля одним обновлением.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id int64, p model.Profile) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET full_name = $2, phone = $3, address = $4 WHERE id = $1`,
		id, p.FullName, p.Phone, p.Address,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AddBonus увеличивает баланс пользователя и возвращает новое значение.
func (r *PostgresRepository) AddBonus(ctx context.Context, id int64, amount int64) (int64, error) {
	var balance int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE users SET balance = balance + $2 WHERE id = $1 RETURNING balance`,
			id, amount,
		).Scan(&balance)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("add bonus: %w", err)
	}
	return balance, nil
}

// ResetBalance обнуляет баланс и возвращает значение до списания.
// Строка пользователя блокируется, чтобы параллельное начисление не потерялось.
func (r *PostgresRepository) ResetBalance(ctx context.Context, id int64) (int64, error) {
	var previous int64
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&previous); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE users SET balance = 0 WHERE id = $1`, id); err != nil {
			return fmt.Errorf("reset balance: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("reset balance: %w", err)
	}
	return previous, nil
}

// AddCartItem сохраняет позицию корзины и возвращает её идентификатор.
func (r *PostgresRepository) AddCartItem(ctx context.Context, item model.CartItem) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO cart_items (buyer_id, link, size, price) VALUES ($1, $2, $3, $4) RETURNING id`,
		item.BuyerID, item.Link, item.Size, item.Price,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, fmt.Errorf("%w: %d", ErrUserNotFound, item.BuyerID)
		}
		return 0, fmt.Errorf("insert cart item: %w", err)
	}
	return id, nil
}

// ListCartItems возвращает позиции корзины покупателя в порядке добавления.
func (r *PostgresRepository) ListCartItems(ctx context.Context, buyerID int64) ([]model.CartItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, buyer_id, link, size, price
		 FROM cart_items
		 WHERE buyer_id = $1
		 ORDER BY id`,
		buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	var items []model.CartItem
	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.ID, &it.BuyerID, &it.Link, &it.Size, &it.Price); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// DeleteCartItem удаляет позицию покупателя. Отсутствующая позиция не считается ошибкой.
func (r *PostgresRepository) DeleteCartItem(ctx context.Context, buyerID, itemID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND buyer_id = $2`, itemID, buyerID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

// DeleteCartItems очищает корзину покупателя.
func (r *PostgresRepository) DeleteCartItems(ctx context.Context, buyerID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id = $1`, buyerID)
	if err != nil {
		return fmt.Errorf("delete cart items: %w", err)
	}
	return nil
}
