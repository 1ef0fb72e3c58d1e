package job

import (
	"sync"
	"time"

	"npcs-desk/constants"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultNoticeLimit = 200

// Notice is a message for the user, what a desktop app shows in a dialog.
type Notice struct {
	ID      string `json:"id"`
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
	Created int64  `json:"created"`
}

type Notices struct {
	mu     sync.Mutex
	items  []Notice
	limit  int
	logger *zap.Logger
}

func NewNotices(logger *zap.Logger) *Notices {
	return &Notices{
		items:  make([]Notice, 0),
		limit:  defaultNoticeLimit,
		logger: logger,
	}
}

func (n *Notices) Add(level, title, orderID, message string) Notice {
	notice := Notice{
		ID:      uuid.New().String(),
		Level:   level,
		Title:   title,
		Message: message,
		OrderID: orderID,
		Created: time.Now().UnixNano() / int64(time.Millisecond),
	}

	fields := []zap.Field{zap.String("title", title), zap.String("order_id", orderID)}
	if level == constants.NoticeWarning {
		n.logger.Warn(message, fields...)
	} else {
		n.logger.Info(message, fields...)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, notice)
	if len(n.items) > n.limit {
		n.items = n.items[len(n.items)-n.limit:]
	}
	return notice
}

func (n *Notices) Info(title, orderID, message string) Notice {
	return n.Add(constants.NoticeInfo, title, orderID, message)
}

func (n *Notices) Warn(title, orderID, message string) Notice {
	return n.Add(constants.NoticeWarning, title, orderID, message)
}

// List returns the notices, oldest first.
func (n *Notices) List() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	ret := make([]Notice, len(n.items))
	copy(ret, n.items)
	return ret
}
