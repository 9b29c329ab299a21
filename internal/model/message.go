package model

// Button описывает кнопку под сообщением. Action передаётся обратно боту,
// URL открывает внешнюю ссылку.
type Button struct {
	Label  string
	Action string
	URL    string
}

// Message описывает исходящее сообщение независимо от транспорта.
type Message struct {
	Text string
	// Photo задаёт URL или идентификатор файла; текст тогда уходит подписью.
	Photo          string
	Buttons        [][]Button
	Keyboard       [][]string
	RemoveKeyboard bool
}

// Event описывает входящее событие: текстовое сообщение или нажатие кнопки.
type Event struct {
	UserID    int64
	ChatID    int64
	Username  string
	Text      string
	Action    string
	MessageID int64
	// CallbackID заполнен только для нажатий кнопок.
	CallbackID string
}

// Private сообщает, что событие пришло из личного чата с ботом:
// у личного чата идентификатор совпадает с идентификатором пользователя.
func (e Event) Private() bool {
	return e.ChatID == e.UserID
}

// IsCallback сообщает, что событие пришло от нажатия кнопки.
func (e Event) IsCallback() bool {
	return e.CallbackID != ""
}
