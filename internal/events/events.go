// Пакет events — публикация событий жизненного цикла файлов в NSQ.
// Публикация необязательна: без адреса nsqd используется NopPublisher.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"
)

// Типы событий.
const (
	FileUploaded   = "file.uploaded"
	FileAnalyzed   = "file.analyzed"
	FileDeleted    = "file.deleted"
	FileReconciled = "file.reconciled"
)

// Event — событие о файле. Тело сообщения NSQ — JSON.
type Event struct {
	Type       string    `json:"type"`
	FileID     string    `json:"fileId"`
	OwnerID    string    `json:"ownerId"`
	StoredName string    `json:"storedName,omitempty"`
	Status     string    `json:"status,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher — получатель событий.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// NopPublisher отбрасывает события.
type NopPublisher struct{}

// Publish ничего не делает.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close ничего не делает.
func (NopPublisher) Close() {}

// NSQPublisher публикует события в топик nsqd.
type NSQPublisher struct {
	producer *nsq.Producer
	topic    string
}

// NewNSQPublisher создаёт producer для nsqd по адресу host:port.
// Соединение устанавливается лениво при первой публикации.
func NewNSQPublisher(addr, topic string, logger *slog.Logger) (*NSQPublisher, error) {
	producer, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания NSQ producer: %w", err)
	}
	producer.SetLogger(&nsqLogger{logger: logger.With(slog.String("component", "nsq"))}, nsq.LogLevelWarning)

	return &NSQPublisher{producer: producer, topic: topic}, nil
}

// Publish сериализует событие и отправляет его синхронно.
// go-nsq не принимает контекст, поэтому отменённый ctx проверяется до отправки.
func (p *NSQPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}
	if err := p.producer.Publish(p.topic, body); err != nil {
		return fmt.Errorf("ошибка публикации события %s: %w", e.Type, err)
	}
	return nil
}

// Ping проверяет соединение с nsqd.
func (p *NSQPublisher) Ping() error {
	return p.producer.Ping()
}

// Close останавливает producer.
func (p *NSQPublisher) Close() {
	p.producer.Stop()
}

// nsqLogger — адаптер логгера go-nsq к slog.
type nsqLogger struct {
	logger *slog.Logger
}

// Output пишет строку go-nsq. Уровень зашит в префикс строки ("WRN", "ERR").
func (l *nsqLogger) Output(_ int, s string) error {
	switch {
	case strings.HasPrefix(s, "ERR"):
		l.logger.Error(strings.TrimSpace(s[3:]))
	case strings.HasPrefix(s, "WRN"):
		l.logger.Warn(strings.TrimSpace(s[3:]))
	default:
		l.logger.Debug(s)
	}
	return nil
}
