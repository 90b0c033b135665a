package notify

import (
	"fmt"
	"log"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
	// CanSend — антиспам: не чаще раза в cooldown на ключ.
	CanSend(key string, cooldown time.Duration) bool
}

// throttle — общий лимитер для всех нотифайеров.
type throttle struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
}

func (t *throttle) CanSend(key string, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastSent[key]; ok && time.Since(last) < cooldown {
		return false
	}
	if t.lastSent == nil {
		t.lastSent = make(map[string]time.Time)
	}
	t.lastSent[key] = time.Now()
	return true
}

// Telegram — пассивный нотифайер: филлы, закрытия, аборты планов.
type Telegram struct {
	throttle

	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Stdout — заглушка, всё логирует.
type Stdout struct {
	throttle
}

func NewStdout() *Stdout                           { return &Stdout{} }
func (s *Stdout) Send(msg string)                  { log.Println(msg) }
func (s *Stdout) Sendf(format string, args ...any) { log.Printf(format, args...) }
