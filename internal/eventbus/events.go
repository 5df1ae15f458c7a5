package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/horsestore/internal/engine"
	"github.com/annel0/horsestore/internal/logging"
	"github.com/google/uuid"
)

// ErrClosed возвращается при работе с закрытой шиной
var ErrClosed = errors.New("event bus is closed")

// Типы событий движка
const (
	TypeOwnerConnected    = "OwnerConnected"
	TypeOwnerDisconnected = "OwnerDisconnected"
	TypeRegionDeactivated = "RegionDeactivated"
)

// Версия схемы полезной нагрузки
const payloadVersion = 1

// OwnerPayload - полезная нагрузка событий входа и выхода владельца
type OwnerPayload struct {
	Owner uuid.UUID `json:"owner"`
}

// RegionPayload - полезная нагрузка выгрузки чанка
type RegionPayload struct {
	World   string      `json:"world"`
	X       int         `json:"x"`
	Z       int         `json:"z"`
	Members []uuid.UUID `json:"members"`
}

// NewEnvelope упаковывает полезную нагрузку в конверт
func NewEnvelope(source, eventType string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   payloadVersion,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Publisher публикует события движка в шину. Реализует engine.Listener,
// поэтому подключается к движку вместо сервиса напрямую.
type Publisher struct {
	bus    EventBus
	source string
	logger *logging.Logger
}

// NewPublisher создает издателя с именем источника source
func NewPublisher(bus EventBus, source string) *Publisher {
	return &Publisher{bus: bus, source: source, logger: logging.GetEventBusLogger()}
}

func (p *Publisher) publish(ctx context.Context, eventType string, payload interface{}) {
	// Выход и выгрузка ведут к сохранению данных: их нельзя отбрасывать
	ev, err := NewEnvelope(p.source, eventType, 9, payload)
	if err != nil {
		p.logger.Error("Не удалось упаковать событие %s: %v", eventType, err)
		return
	}
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.Error("Не удалось опубликовать событие %s: %v", eventType, err)
	}
}

// OwnerConnected публикует вход владельца
func (p *Publisher) OwnerConnected(ctx context.Context, owner uuid.UUID) {
	p.publish(ctx, TypeOwnerConnected, OwnerPayload{Owner: owner})
}

// OwnerDisconnected публикует выход владельца
func (p *Publisher) OwnerDisconnected(ctx context.Context, owner uuid.UUID) {
	p.publish(ctx, TypeOwnerDisconnected, OwnerPayload{Owner: owner})
}

// RegionDeactivated публикует выгрузку чанка
func (p *Publisher) RegionDeactivated(ctx context.Context, region engine.Region, members []engine.ObjectID) {
	p.publish(ctx, TypeRegionDeactivated, RegionPayload{
		World:   region.World,
		X:       region.X,
		Z:       region.Z,
		Members: members,
	})
}

// Bind подписывает слушателя на события движка из шины.
// Нераспознанные и битые события пропускаются с записью в лог.
func Bind(ctx context.Context, bus EventBus, l engine.Listener) (Subscription, error) {
	logger := logging.GetEventBusLogger()
	filter := Filter{Types: []string{TypeOwnerConnected, TypeOwnerDisconnected, TypeRegionDeactivated}}

	return bus.Subscribe(ctx, filter, func(ctx context.Context, ev *Envelope) {
		if err := dispatch(ctx, ev, l); err != nil {
			logger.Warn("Событие %s (%s) пропущено: %v", ev.ID, ev.EventType, err)
		}
	})
}

func dispatch(ctx context.Context, ev *Envelope, l engine.Listener) error {
	if ev.Version != payloadVersion {
		return fmt.Errorf("неподдерживаемая версия схемы %d", ev.Version)
	}

	switch ev.EventType {
	case TypeOwnerConnected, TypeOwnerDisconnected:
		var p OwnerPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		if p.Owner == uuid.Nil {
			return errors.New("пустой владелец")
		}
		if ev.EventType == TypeOwnerConnected {
			l.OwnerConnected(ctx, p.Owner)
		} else {
			l.OwnerDisconnected(ctx, p.Owner)
		}
	case TypeRegionDeactivated:
		var p RegionPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		l.RegionDeactivated(ctx, engine.Region{World: p.World, X: p.X, Z: p.Z}, p.Members)
	default:
		return fmt.Errorf("неизвестный тип события")
	}
	return nil
}

var _ engine.Listener = (*Publisher)(nil)
