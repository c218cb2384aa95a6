package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	t.Run("fixed intent order whatever the map order", func(t *testing.T) {
		intents := n.Normalize(map[string]any{
			"total":          100,
			"discount":       "10,50",
			"package":        " Gestante ",
			"extra_quantity": 4.0,
		})
		require.Len(t, intents, 4)
		assert.Equal(t, session.SetPackage{Ref: "Gestante"}, intents[0])
		assert.Equal(t, session.SetExtraUnitQuantity{Quantity: 4}, intents[1])
		discount, ok := intents[2].(session.SetDiscount)
		require.True(t, ok)
		assert.True(t, discount.Amount.Equal(d(10.5)))
		assert.IsType(t, session.SetTotal{}, intents[3])
	})

	t.Run("portuguese aliases", func(t *testing.T) {
		intents := n.Normalize(map[string]any{
			"pacote":    "Newborn",
			"acrescimo": "R$ 1.234,56",
			"categoria": "Newborn",
		})
		require.Len(t, intents, 3)
		assert.Equal(t, session.SetPackage{Ref: "Newborn"}, intents[0])
		assert.Equal(t, session.SetCategory{Category: "Newborn"}, intents[1])
		addition := intents[2].(session.SetAddition)
		assert.True(t, addition.Amount.Equal(d(1234.56)))
	})

	t.Run("malformed values are coerced and logged", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		n := NewNormalizer(zap.New(core))

		intents := n.Normalize(map[string]any{
			"discount":     "abc",
			"status":       "sumido",
			"scheduled_at": "amanha",
			"unknown":      true,
		})
		require.Len(t, intents, 1)
		assert.True(t, intents[0].(session.SetDiscount).Amount.IsZero())
		assert.Equal(t, 1, logs.FilterMessage("malformed amount coerced to zero").Len())
		assert.Equal(t, 1, logs.FilterMessage("ignoring unknown session status").Len())
		assert.Equal(t, 1, logs.FilterMessage("ignoring malformed schedule").Len())
	})

	t.Run("product lines from decoded JSON", func(t *testing.T) {
		lineID := uuid.New()
		intents := n.Normalize(map[string]any{
			"products": []any{
				map[string]any{"id": lineID.String(), "name": "Quadro 40x60", "quantity": 1.0, "unit_price": "R$ 180,00", "origin": "manual", "delivered": true},
				"not a line",
			},
		})
		require.Len(t, intents, 1)
		lines := intents[0].(session.SetManualProducts).Lines
		require.Len(t, lines, 1)
		assert.Equal(t, lineID, lines[0].ID)
		assert.Equal(t, 1, lines[0].Quantity)
		assert.True(t, lines[0].UnitPrice.Equal(d(180)))
		assert.Equal(t, pricing.OriginManual, lines[0].Origin)
		assert.True(t, lines[0].Delivered)
	})

	t.Run("schedule and snapshot", func(t *testing.T) {
		intents := n.Normalize(map[string]any{
			"scheduled_at": "2026-06-01T15:30:00-03:00",
			"snapshot":     map[string]any{"package_name": "Gestante", "base_price": "200", "source": "catalog"},
		})
		require.Len(t, intents, 2)
		snap := intents[0].(session.SetSnapshot).Snapshot
		assert.Equal(t, "Gestante", snap.PackageName)
		assert.True(t, snap.BasePrice.Equal(d(200)))
		at := intents[1].(session.SetSchedule).At
		assert.True(t, at.Equal(time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC)))
	})

	t.Run("null snapshot becomes an empty one", func(t *testing.T) {
		intents := n.Normalize(map[string]any{"snapshot": nil})
		require.Len(t, intents, 1)
		assert.True(t, intents[0].(session.SetSnapshot).Snapshot.IsEmpty())
	})
}
