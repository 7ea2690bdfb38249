package types

import (
	"strconv"
	"strings"

	"github.com/dialtel/crm-backend/internal/dates"
)

// RawSaleRecord is a sale exactly as it sits in the record store. The
// attribute names are the legacy ones the original CRM wrote, and most
// concepts have accumulated several aliases over the years (three ways to
// say "agent name", two phone fields, four date fields). Nothing outside
// this file should ever look at these aliases; Resolve is the single
// boundary that flattens the mess into a typed SaleRecord.
type RawSaleRecord struct {
	// Agent identity aliases, in resolution priority order.
	AgentName    string `dynamodbav:"agenteNombre,omitempty" json:"agenteNombre,omitempty"`
	Agent        string `dynamodbav:"agente,omitempty" json:"agente,omitempty"`
	AgentNameAlt string `dynamodbav:"nombreAgente,omitempty" json:"nombreAgente,omitempty"`
	CreatedBy    string `dynamodbav:"creadoPor,omitempty" json:"creadoPor,omitempty"`
	RegisteredBy string `dynamodbav:"registeredBy,omitempty" json:"registeredBy,omitempty"`
	Vendor       string `dynamodbav:"vendedor,omitempty" json:"vendedor,omitempty"`
	AgentID      string `dynamodbav:"agenteId,omitempty" json:"agenteId,omitempty"`
	OwnerID      string `dynamodbav:"ownerId,omitempty" json:"ownerId,omitempty"`

	Supervisor string `dynamodbav:"supervisor,omitempty" json:"supervisor,omitempty"`
	Team       string `dynamodbav:"team,omitempty" json:"team,omitempty"`
	TeamAlt    string `dynamodbav:"equipo,omitempty" json:"equipo,omitempty"`

	CustomerName string `dynamodbav:"nombre_cliente,omitempty" json:"nombre_cliente,omitempty"`
	Phone        string `dynamodbav:"telefono,omitempty" json:"telefono,omitempty"`
	PhoneMain    string `dynamodbav:"telefono_principal,omitempty" json:"telefono_principal,omitempty"`
	Account      string `dynamodbav:"numero_cuenta,omitempty" json:"numero_cuenta,omitempty"`

	// Service aliases in priority order.
	Services    string `dynamodbav:"servicios,omitempty" json:"servicios,omitempty"`
	ServiceType string `dynamodbav:"tipo_servicio,omitempty" json:"tipo_servicio,omitempty"`
	Product     string `dynamodbav:"producto_contratado,omitempty" json:"producto_contratado,omitempty"`

	Risk   string `dynamodbav:"riesgo,omitempty" json:"riesgo,omitempty"`
	Market string `dynamodbav:"mercado,omitempty" json:"mercado,omitempty"`

	// Points as written at sale time. Stored as a number by recent code
	// and as a string by the oldest importer, hence the any type.
	Points any `dynamodbav:"puntaje,omitempty" json:"puntaje,omitempty"`

	// Date aliases in priority order. Each may be a string in any of the
	// supported formats, an epoch-millisecond number, or absent.
	SaleDay      any `dynamodbav:"dia_venta,omitempty" json:"dia_venta,omitempty"`
	ContractDate any `dynamodbav:"fecha_contratacion,omitempty" json:"fecha_contratacion,omitempty"`
	CreatedAt    any `dynamodbav:"creadoEn,omitempty" json:"creadoEn,omitempty"`
	CreatedAtAlt any `dynamodbav:"createdAt,omitempty" json:"createdAt,omitempty"`

	Status   string `dynamodbav:"status,omitempty" json:"status,omitempty"`
	Excluded bool   `dynamodbav:"excluirDeReporte,omitempty" json:"excluirDeReporte,omitempty"`
}

// SaleRecord is the typed form the aggregation pipeline works with.
type SaleRecord struct {
	AgentDisplayName      string
	AgentID               string
	SupervisorDisplayName string
	TeamName              string

	ServiceKey        string
	RiskLevel         string
	PrecomputedPoints *float64

	SaleDate   dates.CivilDate
	SaleDateOK bool // false when no alias held a parseable date

	Status   string
	Excluded bool

	AccountNumber string
	PhoneNumber   string // digits only
}

// Resolve flattens the raw record: first non-empty candidate wins for
// each aliased concept, dates are normalized (sale day first, contract
// date second, creation timestamp as the fallback of last resort), the
// phone is reduced to digits and the stored points are coerced to a float
// when present.
func (r RawSaleRecord) Resolve() SaleRecord {
	rec := SaleRecord{
		AgentDisplayName:      firstNonEmpty(r.AgentName, r.Agent, r.AgentNameAlt, r.CreatedBy, r.RegisteredBy, r.Vendor),
		AgentID:               firstNonEmpty(r.AgentID, r.OwnerID),
		SupervisorDisplayName: strings.TrimSpace(r.Supervisor),
		TeamName:              firstNonEmpty(r.Team, r.TeamAlt),
		ServiceKey:            firstNonEmpty(r.Services, r.ServiceType, r.Product),
		RiskLevel:             strings.TrimSpace(r.Risk),
		Status:                strings.TrimSpace(r.Status),
		Excluded:              r.Excluded,
		AccountNumber:         strings.TrimSpace(r.Account),
		PhoneNumber:           digitsOnly(firstNonEmpty(r.Phone, r.PhoneMain)),
	}

	for _, candidate := range []any{r.SaleDay, r.ContractDate, r.CreatedAt, r.CreatedAtAlt} {
		if d, ok := dates.Normalize(candidate); ok {
			rec.SaleDate = d
			rec.SaleDateOK = true
			break
		}
	}

	if pts, ok := coerceFloat(r.Points); ok {
		rec.PrecomputedPoints = &pts
	}

	return rec
}

// IsCancelled reports whether the status text marks the sale as
// cancelled. Status is free text, so this matches both the English and
// Spanish spellings the forms have produced.
func (s SaleRecord) IsCancelled() bool {
	status := strings.ToLower(s.Status)
	return strings.Contains(status, "cancel") // "cancelled", "canceled", "cancelado", "cancelada"
}

// NaturalKey identifies the same physical sale across partitions: the
// account number (preferred) or the phone number, combined with the
// service key. Empty when the record has neither identifier, in which
// case cross-partition dedup cannot apply and the record always counts.
func (s SaleRecord) NaturalKey() string {
	id := s.AccountNumber
	if id == "" {
		id = s.PhoneNumber
	}
	if id == "" {
		return ""
	}
	return id + "|" + s.ServiceKey
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
