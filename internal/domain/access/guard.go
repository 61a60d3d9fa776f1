// Пакет access — проверка владения записями файлов.
// Единственное место, где сравнивается владелец записи с действующим
// пользователем. Все операции над записями проходят через Guard.
package access

import (
	"errors"

	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
)

// ErrNotOwner — запись отсутствует или принадлежит другому пользователю.
// Вызывающий код не должен различать эти случаи.
var ErrNotOwner = errors.New("запись недоступна")

// Guard — проверка владения записями.
type Guard struct{}

// NewGuard создаёт Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Owns возвращает true, если запись существует и принадлежит ownerID.
// Пустой ownerID не владеет ничем.
func (g *Guard) Owns(ownerID string, rec *model.FileRecord) bool {
	return rec != nil && ownerID != "" && rec.OwnerID == ownerID
}

// Authorize возвращает ErrNotOwner, если ownerID не владеет записью.
func (g *Guard) Authorize(ownerID string, rec *model.FileRecord) error {
	if !g.Owns(ownerID, rec) {
		return ErrNotOwner
	}
	return nil
}

// Filter оставляет только записи, принадлежащие ownerID.
func (g *Guard) Filter(ownerID string, records []*model.FileRecord) []*model.FileRecord {
	result := make([]*model.FileRecord, 0, len(records))
	for _, rec := range records {
		if g.Owns(ownerID, rec) {
			result = append(result, rec)
		}
	}
	return result
}
