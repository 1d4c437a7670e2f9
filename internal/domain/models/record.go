package models

import (
	"sort"
	"time"
)

// DataSource identifies where a record's fields came from.
type DataSource string

const (
	SourcePrimary        DataSource = "primary"
	SourceSecondaryOnly  DataSource = "secondary-only"
	SourceComposite      DataSource = "composite"
	SourceStreamFallback DataSource = "stream-fallback"
)

// Warning tags attached to records. Callers must check warnings; absence of
// an error does not mean complete data.
const (
	WarnFallback         = "fallback"
	WarnPartial          = "partial"
	WarnStale            = "stale"
	WarnIVScaleCorrected = "iv_scale_corrected"
	WarnPartialWindow    = "partial_window"
	WarnCrossAssetProxy  = "cross_asset_proxy"
)

// Field names a single MarketRecord field for ownership declarations.
type Field string

const (
	FieldIV           Field = "iv"
	FieldIVRank       Field = "iv_rank"
	FieldIVPercentile Field = "iv_percentile"
	FieldHV20         Field = "hv20"
	FieldHV30         Field = "hv30"
	FieldHV90         Field = "hv90"
	FieldHV252        Field = "hv252"
	FieldLiquidity    Field = "liquidity_rating"
	FieldEarningsDate Field = "earnings_date"
	FieldPrice        Field = "price"
	FieldReturns      Field = "returns"
	FieldSector       Field = "sector"
)

// HVFields are the historical volatility fields, in window order.
var HVFields = []Field{FieldHV20, FieldHV30, FieldHV90, FieldHV252}

// MarketRecord is the per-symbol unit of output. Optional metrics are
// pointers: nil means the owner never supplied a value, and no component may
// substitute a default for a missing metric.
type MarketRecord struct {
	Symbol string `json:"symbol"`

	IV           *float64 `json:"iv,omitempty"`
	IVRank       *float64 `json:"iv_rank,omitempty"`
	IVPercentile *float64 `json:"iv_percentile,omitempty"`

	HV20  *float64 `json:"hv20,omitempty"`
	HV30  *float64 `json:"hv30,omitempty"`
	HV90  *float64 `json:"hv90,omitempty"`
	HV252 *float64 `json:"hv252,omitempty"`

	LiquidityRating *int       `json:"liquidity_rating,omitempty"`
	EarningsDate    *time.Time `json:"earnings_date,omitempty"`

	Price   *float64  `json:"price,omitempty"`
	Returns []float64 `json:"returns,omitempty"`
	Sector  string    `json:"sector,omitempty"`

	DataSource DataSource `json:"data_source"`
	Warnings   []string   `json:"warnings,omitempty"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// AddWarning appends a warning tag, keeping the set deduplicated and sorted
// so serialized records compare byte-identical across runs.
func (r *MarketRecord) AddWarning(w string) {
	for _, have := range r.Warnings {
		if have == w {
			return
		}
	}
	r.Warnings = append(r.Warnings, w)
	sort.Strings(r.Warnings)
}

// HasWarning reports whether the record carries the given tag.
func (r *MarketRecord) HasWarning(w string) bool {
	for _, have := range r.Warnings {
		if have == w {
			return true
		}
	}
	return false
}

// HasHV reports whether any historical volatility window is populated.
func (r *MarketRecord) HasHV() bool {
	return r.HV20 != nil || r.HV30 != nil || r.HV90 != nil || r.HV252 != nil
}

// PartialRecord is a provider's contribution for one symbol. Providers fill
// only the fields they own; everything else stays nil.
type PartialRecord struct {
	IV              *float64
	IVRank          *float64
	IVPercentile    *float64
	HV20            *float64
	HV30            *float64
	HV90            *float64
	HV252           *float64
	LiquidityRating *int
	EarningsDate    *time.Time
	Price           *float64
	Returns         []float64
	Sector          string

	// Warnings raised by the provider while fetching this symbol, carried
	// onto the merged record (e.g. iv_scale_corrected).
	Warnings []string
}

// Apply copies the listed fields from src onto dst. A field already set on
// dst is never overwritten: exactly one component owns each field, and the
// first owner wins.
func Apply(dst *MarketRecord, src *PartialRecord, fields []Field) {
	if src == nil {
		return
	}
	for _, f := range fields {
		switch f {
		case FieldIV:
			if dst.IV == nil {
				dst.IV = src.IV
			}
		case FieldIVRank:
			if dst.IVRank == nil {
				dst.IVRank = src.IVRank
			}
		case FieldIVPercentile:
			if dst.IVPercentile == nil {
				dst.IVPercentile = src.IVPercentile
			}
		case FieldHV20:
			if dst.HV20 == nil {
				dst.HV20 = src.HV20
			}
		case FieldHV30:
			if dst.HV30 == nil {
				dst.HV30 = src.HV30
			}
		case FieldHV90:
			if dst.HV90 == nil {
				dst.HV90 = src.HV90
			}
		case FieldHV252:
			if dst.HV252 == nil {
				dst.HV252 = src.HV252
			}
		case FieldLiquidity:
			if dst.LiquidityRating == nil {
				dst.LiquidityRating = src.LiquidityRating
			}
		case FieldEarningsDate:
			if dst.EarningsDate == nil {
				dst.EarningsDate = src.EarningsDate
			}
		case FieldPrice:
			if dst.Price == nil {
				dst.Price = src.Price
			}
		case FieldReturns:
			if dst.Returns == nil {
				dst.Returns = src.Returns
			}
		case FieldSector:
			if dst.Sector == "" {
				dst.Sector = src.Sector
			}
		}
	}
	for _, w := range src.Warnings {
		dst.AddWarning(w)
	}
}

// Float returns a pointer to v, for building optional fields.
func Float(v float64) *float64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
