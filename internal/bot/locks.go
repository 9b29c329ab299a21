package bot

import "sync"

// userLocks выдаёт мьютекс на пользователя, чтобы события одного пользователя
// обрабатывались строго по очереди. Неиспользуемые записи удаляются.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

// Lock блокирует пользователя и возвращает функцию разблокировки.
func (l *userLocks) Lock(userID int64) func() {
	l.mu.Lock()
	e, ok := l.locks[userID]
	if !ok {
		e = &userLock{}
		l.locks[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
