package repository

import (
	"context"

	"VolScreen/internal/domain/models"
	drepo "VolScreen/internal/domain/repository"
)

// NopExporter is the exporter used when no export backend is configured.
type NopExporter struct{}

// NewNopExporter returns an exporter that drops everything.
func NewNopExporter() drepo.Exporter { return NopExporter{} }

func (NopExporter) Export(ctx context.Context, records []*models.MarketRecord) error { return nil }

func (NopExporter) Close() error { return nil }
