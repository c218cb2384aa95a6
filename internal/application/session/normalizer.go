package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Update keys accepted by Normalize. Each key has Portuguese aliases used by
// older clients.
const (
	KeyPackage       = "package"
	KeyExtraQuantity = "extra_quantity"
	KeyProducts      = "products"
	KeyDiscount      = "discount"
	KeyAddition      = "addition"
	KeyStatus        = "status"
	KeyDescription   = "description"
	KeyNotes         = "notes"
	KeyScheduledAt   = "scheduled_at"
	KeyCategory      = "category"
	KeyPaidToDate    = "paid_to_date"
	KeySnapshot      = "snapshot"
	KeyTotal         = "total"
)

var keyAliases = map[string]string{
	"pacote":            KeyPackage,
	"package_id":        KeyPackage,
	"qtd_fotos_extra":   KeyExtraQuantity,
	"produtos":          KeyProducts,
	"desconto":          KeyDiscount,
	"acrescimo":         KeyAddition,
	"descricao":         KeyDescription,
	"observacoes":       KeyNotes,
	"data":              KeyScheduledAt,
	"categoria":         KeyCategory,
	"valor_pago":        KeyPaidToDate,
	"regras_congeladas": KeySnapshot,
	"valor_total":       KeyTotal,
}

// keyOrder fixes the order intents are produced in
var keyOrder = []string{
	KeyPackage, KeyCategory, KeySnapshot, KeyExtraQuantity, KeyProducts,
	KeyDiscount, KeyAddition, KeyStatus, KeyDescription, KeyNotes,
	KeyScheduledAt, KeyPaidToDate, KeyTotal,
}

// Normalizer translates loosely typed update maps into session intents.
// Malformed values are coerced to a safe default and logged, never rejected.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a new Normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Normalize converts raw updates into intents. Unknown keys are ignored.
func (n *Normalizer) Normalize(updates map[string]any) []session.Intent {
	canonical := make(map[string]any, len(updates))
	for key, value := range updates {
		k := strings.ToLower(strings.TrimSpace(key))
		if alias, ok := keyAliases[k]; ok {
			k = alias
		}
		canonical[k] = value
	}

	intents := make([]session.Intent, 0, len(canonical))
	for _, key := range keyOrder {
		raw, ok := canonical[key]
		if !ok {
			continue
		}
		delete(canonical, key)
		if intent, ok := n.intentFor(key, raw); ok {
			intents = append(intents, intent)
		}
	}
	for key := range canonical {
		n.logger.Debug("ignoring unknown update key", zap.String("key", key))
	}
	return intents
}

func (n *Normalizer) intentFor(key string, raw any) (session.Intent, bool) {
	switch key {
	case KeyPackage:
		return session.SetPackage{Ref: strings.TrimSpace(toString(raw))}, true
	case KeyCategory:
		return session.SetCategory{Category: strings.TrimSpace(toString(raw))}, true
	case KeySnapshot:
		return session.SetSnapshot{Snapshot: n.snapshot(raw)}, true
	case KeyExtraQuantity:
		amount := n.amount(key, raw)
		return session.SetExtraUnitQuantity{Quantity: int(amount.IntPart())}, true
	case KeyProducts:
		return session.SetManualProducts{Lines: n.products(raw)}, true
	case KeyDiscount:
		return session.SetDiscount{Amount: n.amount(key, raw)}, true
	case KeyAddition:
		return session.SetAddition{Amount: n.amount(key, raw)}, true
	case KeyStatus:
		status := session.Status(strings.ToLower(strings.TrimSpace(toString(raw))))
		if !status.IsValid() {
			n.logger.Warn("ignoring unknown session status", zap.String("status", string(status)))
			return nil, false
		}
		return session.SetStatus{Status: status}, true
	case KeyDescription:
		return session.SetDescription{Text: toString(raw)}, true
	case KeyNotes:
		return session.SetNotes{Text: toString(raw)}, true
	case KeyScheduledAt:
		at, err := toTime(raw)
		if err != nil {
			n.logger.Warn("ignoring malformed schedule", zap.Any("value", raw), zap.Error(err))
			return nil, false
		}
		return session.SetSchedule{At: at}, true
	case KeyPaidToDate:
		return session.RecordPaidToDate{Amount: n.amount(key, raw)}, true
	case KeyTotal:
		return session.SetTotal{Amount: n.amount(key, raw)}, true
	}
	return nil, false
}

func (n *Normalizer) amount(key string, raw any) decimal.Decimal {
	d, err := valueobject.ParseAmount(raw)
	if err != nil {
		n.logger.Warn("malformed amount coerced to zero",
			zap.String("key", key),
			zap.Any("value", raw),
			zap.Error(err),
		)
		return decimal.Zero
	}
	return d
}

func (n *Normalizer) snapshot(raw any) pricing.RuleSnapshot {
	switch v := raw.(type) {
	case nil:
		return pricing.RuleSnapshot{}
	case pricing.RuleSnapshot:
		return v
	case *pricing.RuleSnapshot:
		if v == nil {
			return pricing.RuleSnapshot{}
		}
		return *v
	}
	var snap pricing.RuleSnapshot
	if err := remarshal(raw, &snap); err != nil {
		n.logger.Warn("malformed snapshot treated as empty", zap.Error(err))
		return pricing.RuleSnapshot{}
	}
	return snap
}

func (n *Normalizer) products(raw any) []pricing.ProductLine {
	switch v := raw.(type) {
	case nil:
		return []pricing.ProductLine{}
	case []pricing.ProductLine:
		return v
	case []any:
		lines := make([]pricing.ProductLine, 0, len(v))
		for _, item := range v {
			fields, ok := item.(map[string]any)
			if !ok {
				n.logger.Warn("ignoring malformed product line", zap.Any("value", item))
				continue
			}
			lines = append(lines, n.productLine(fields))
		}
		return lines
	}
	n.logger.Warn("malformed product list treated as empty", zap.Any("value", raw))
	return []pricing.ProductLine{}
}

func (n *Normalizer) productLine(fields map[string]any) pricing.ProductLine {
	line := pricing.ProductLine{
		Name:      strings.TrimSpace(toString(fields["name"])),
		Quantity:  int(n.amount("products.quantity", fields["quantity"]).IntPart()),
		UnitPrice: n.amount("products.unit_price", fields["unit_price"]),
		Origin:    pricing.LineOrigin(toString(fields["origin"])),
		Produced:  toBool(fields["produced"]),
		Delivered: toBool(fields["delivered"]),
	}
	if id, err := uuid.Parse(toString(fields["id"])); err == nil {
		line.ID = id
	}
	if id, err := uuid.Parse(toString(fields["product_id"])); err == nil {
		line.ProductID = id
	}
	return line
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func toString(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(raw)
}

func toBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "sim")
	}
	return false
}

func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", v)
	}
	return time.Time{}, fmt.Errorf("unsupported time value %T", raw)
}
