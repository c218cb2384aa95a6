package session

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/catalog"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const displayDateLayout = "02/01/2006 15:04"

var statusLabels = map[session.Status]string{
	session.StatusScheduled:  "Agendado",
	session.StatusConfirmed:  "Confirmado",
	session.StatusInProgress: "Em andamento",
	session.StatusCompleted:  "Concluído",
	session.StatusDelivered:  "Entregue",
	session.StatusCancelled:  "Cancelado",
	session.StatusArchived:   "Arquivado",
}

// DisplayProduct is one formatted product line
type DisplayProduct struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
	Origin    string `json:"origin"`
	Produced  bool   `json:"produced"`
	Delivered bool   `json:"delivered"`
}

// DisplayRow is a session formatted for listing screens
type DisplayRow struct {
	ID               uuid.UUID        `json:"id"`
	ClientName       string           `json:"client_name"`
	ClientPhone      string           `json:"client_phone,omitempty"`
	Date             string           `json:"date"`
	Category         string           `json:"category"`
	Package          string           `json:"package"`
	Status           string           `json:"status"`
	StatusLabel      string           `json:"status_label"`
	ExtraQuantity    int              `json:"extra_quantity"`
	BaseValue        string           `json:"base_value"`
	ExtraUnitPrice   string           `json:"extra_unit_price"`
	ExtraSubtotal    string           `json:"extra_subtotal"`
	ProductsSubtotal string           `json:"products_subtotal"`
	Discount         string           `json:"discount"`
	Addition         string           `json:"addition"`
	Total            string           `json:"total"`
	Paid             string           `json:"paid"`
	Balance          string           `json:"balance"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	BalanceAmount    decimal.Decimal  `json:"balance_amount"`
	Products         []DisplayProduct `json:"products"`
	Version          int              `json:"version"`
}

// DisplayConverter formats sessions for display. Frozen rules are always
// preferred; the catalog is asked only when the snapshot lacks a value.
type DisplayConverter struct {
	catalog  catalog.Resolver
	printer  *message.Printer
	tag      language.Tag
	symbol   string
	point    string // decimal separator of the locale
	location *time.Location
	logger   *zap.Logger
}

// NewDisplayConverter creates a converter for a BCP 47 locale such as "pt-BR"
func NewDisplayConverter(resolver catalog.Resolver, locale string, logger *zap.Logger) *DisplayConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.BrazilianPortuguese
	}
	printer := message.NewPrinter(tag)
	return &DisplayConverter{
		catalog:  resolver,
		printer:  printer,
		tag:      tag,
		symbol:   "R$",
		point:    strings.Trim(printer.Sprint(number.Decimal(1.5, number.Scale(1))), "0123456789"),
		location: time.Local,
		logger:   logger,
	}
}

// ToDisplay converts a session into a display row
func (c *DisplayConverter) ToDisplay(ctx context.Context, s *session.Session) DisplayRow {
	balance := s.Total.Sub(s.PaidToDate)
	row := DisplayRow{
		ID:               s.ID,
		Date:             s.ScheduledAt.In(c.location).Format(displayDateLayout),
		Category:         c.category(ctx, s),
		Package:          c.packageName(s),
		Status:           string(s.Status),
		StatusLabel:      c.statusLabel(s.Status),
		ExtraQuantity:    s.ExtraQuantity,
		BaseValue:        c.Money(s.BaseValue),
		ExtraUnitPrice:   c.Money(s.ExtraUnitPrice),
		ExtraSubtotal:    c.Money(s.ExtraSubtotal),
		ProductsSubtotal: c.Money(s.ProductsSubtotal),
		Discount:         c.Money(s.Discount),
		Addition:         c.Money(s.Addition),
		Total:            c.Money(s.Total),
		Paid:             c.Money(s.PaidToDate),
		Balance:          c.Money(balance),
		TotalAmount:      s.Total,
		BalanceAmount:    balance,
		Products:         make([]DisplayProduct, 0, len(s.Products)),
		Version:          s.Version,
	}
	if s.Client != nil {
		row.ClientName = s.Client.Name
		row.ClientPhone = s.Client.Phone
	}
	for _, line := range s.Products {
		row.Products = append(row.Products, DisplayProduct{
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: c.Money(line.UnitPrice),
			Subtotal:  c.Money(line.Amount()),
			Origin:    string(line.Origin),
			Produced:  line.Produced,
			Delivered: line.Delivered,
		})
	}
	return row
}

// Money formats an amount in the converter's locale, e.g. "R$ 1.234,56".
// Only the whole part goes through the locale grouping; the cents are taken
// from the decimal as they are.
func (c *DisplayConverter) Money(amount decimal.Decimal) string {
	amount = amount.Round(2)
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	whole, cents, _ := strings.Cut(amount.Abs().StringFixed(2), ".")

	grouped := whole
	if units, err := strconv.ParseInt(whole, 10, 64); err == nil {
		grouped = c.printer.Sprint(number.Decimal(units))
	}
	return c.symbol + " " + sign + grouped + c.point + cents
}

func (c *DisplayConverter) packageName(s *session.Session) string {
	if s.Snapshot.PackageName != "" {
		return s.Snapshot.PackageName
	}
	return s.PackageRef
}

func (c *DisplayConverter) category(ctx context.Context, s *session.Session) string {
	name := s.Snapshot.Category
	if name == "" {
		name = s.Category
	}
	if _, err := uuid.Parse(name); err == nil && c.catalog != nil {
		resolved, err := c.catalog.ResolveCategory(ctx, s.TenantID, name)
		if err != nil {
			c.logger.Debug("category lookup failed", zap.String("category", name), zap.Error(err))
			return name
		}
		return resolved
	}
	return c.titleCase(strings.TrimSpace(name))
}

func (c *DisplayConverter) statusLabel(status session.Status) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return c.titleCase(strings.ReplaceAll(string(status), "_", " "))
}

// titleCase builds a fresh caser per call; casers are not safe for concurrent use
func (c *DisplayConverter) titleCase(s string) string {
	return cases.Title(c.tag).String(s)
}
