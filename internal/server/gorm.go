package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"qcsync/internal/qc"
)

// inspection is the qc_inspections table.
type inspection struct {
	ID               string         `gorm:"primaryKey;type:uuid"`
	IdempotencyKey   string         `gorm:"column:idempotency_key;uniqueIndex;not null"`
	DeviceID         string         `gorm:"column:device_id;index;not null"`
	FarmerDeliveryID string         `gorm:"column:farmer_delivery_id;index;not null"`
	ProductID        string         `gorm:"column:product_id;not null"`
	AcceptedQuantity float64        `gorm:"column:accepted_quantity;not null"`
	RejectedQuantity float64        `gorm:"column:rejected_quantity;not null"`
	RejectionReasons datatypes.JSON `gorm:"column:rejection_reasons;type:jsonb"`
	Notes            string         `gorm:"column:notes;type:text"`
	InspectedAt      time.Time      `gorm:"column:inspected_at;not null"`
	ReceivedAt       time.Time      `gorm:"column:received_at;not null;index"`
}

func (inspection) TableName() string {
	return "qc_inspections"
}

// GormLedger stores inspections in PostgreSQL. The unique index on
// idempotency_key makes Record idempotent across servers and restarts.
type GormLedger struct {
	db    *gorm.DB
	clock qc.Clock
	ids   qc.IDGenerator
}

var _ Ledger = (*GormLedger)(nil)

// OpenGormLedger connects to PostgreSQL at dsn and migrates the schema.
func OpenGormLedger(dsn string, clock qc.Clock, ids qc.IDGenerator) (*GormLedger, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return NewGormLedger(db, clock, ids)
}

// NewGormLedger wraps an open gorm connection and migrates the schema.
func NewGormLedger(db *gorm.DB, clock qc.Clock, ids qc.IDGenerator) (*GormLedger, error) {
	if err := db.AutoMigrate(&inspection{}); err != nil {
		return nil, fmt.Errorf("migrating ledger schema: %w", err)
	}
	return &GormLedger{db: db, clock: clock, ids: ids}, nil
}

func (g *GormLedger) Record(ctx context.Context, deviceID string, e qc.Entry) (bool, error) {
	reasons, err := json.Marshal(e.RejectionReasons)
	if err != nil {
		return false, fmt.Errorf("encoding rejection reasons: %w", err)
	}

	row := inspection{
		ID:               g.ids.New(),
		IdempotencyKey:   e.IdempotencyKey(),
		DeviceID:         deviceID,
		FarmerDeliveryID: e.FarmerDeliveryID,
		ProductID:        e.ProductID,
		AcceptedQuantity: e.AcceptedQuantity,
		RejectedQuantity: e.RejectedQuantity,
		RejectionReasons: datatypes.JSON(reasons),
		Notes:            e.Notes,
		InspectedAt:      e.Timestamp,
		ReceivedAt:       g.clock.Now().UTC(),
	}

	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("recording inspection: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (g *GormLedger) List(ctx context.Context, limit int) ([]*LedgerEntry, error) {
	var rows []inspection
	if err := g.db.WithContext(ctx).Order("received_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing inspections: %w", err)
	}

	out := make([]*LedgerEntry, len(rows))
	for i, r := range rows {
		var reasons []string
		if len(r.RejectionReasons) > 0 {
			if err := json.Unmarshal(r.RejectionReasons, &reasons); err != nil {
				return nil, fmt.Errorf("decoding rejection reasons of %s: %w", r.ID, err)
			}
		}
		if reasons == nil {
			reasons = []string{}
		}
		out[i] = &LedgerEntry{
			ID:       r.ID,
			DeviceID: r.DeviceID,
			Entry: qc.Entry{
				FarmerDeliveryID: r.FarmerDeliveryID,
				ProductID:        r.ProductID,
				AcceptedQuantity: r.AcceptedQuantity,
				RejectedQuantity: r.RejectedQuantity,
				RejectionReasons: reasons,
				Notes:            r.Notes,
				Timestamp:        r.InspectedAt.UTC(),
			},
			IdempotencyKey: r.IdempotencyKey,
			ReceivedAt:     r.ReceivedAt.UTC(),
		}
	}
	return out, nil
}

func (g *GormLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&inspection{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting inspections: %w", err)
	}
	return n, nil
}

// Close closes the underlying connection pool.
func (g *GormLedger) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
