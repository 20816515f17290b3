// Package ledgerexport writes payment ledger snapshots to object storage as CSV.
package ledgerexport

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
)

const maxExportRows = 1000

var header = []string{
	"event_id", "identity_id", "plan_id", "amount_minor", "currency",
	"source", "actor_id", "referral_code", "outcome", "reason", "processed_at",
}

// Uploader stores an export object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Export describes one uploaded ledger file.
type Export struct {
	Key  string `json:"key"`
	Rows int    `json:"rows"`
}

type Exporter struct {
	store    store.Store
	uploader Uploader
	cfg      *Config
}

func NewExporter(s store.Store, uploader Uploader, cfg *Config) *Exporter {
	return &Exporter{store: s, uploader: uploader, cfg: cfg}
}

// Export writes the ledger rows matching filter, up to the store page limit.
func (e *Exporter) Export(ctx context.Context, filter store.PaymentFilter, now time.Time) (*Export, error) {
	if filter.Limit <= 0 || filter.Limit > maxExportRows {
		filter.Limit = maxExportRows
	}
	events, err := e.store.ListPaymentEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}

	body, err := encodeCSV(events)
	if err != nil {
		return nil, err
	}

	key := e.cfg.ObjectKey(now, uuid.NewString()[:8])
	if err := e.uploader.Upload(ctx, key, body, "text/csv"); err != nil {
		return nil, err
	}

	log.Infof("[LedgerExport] Uploaded %d payment events to %s", len(events), key)
	return &Export{Key: key, Rows: len(events)}, nil
}

func encodeCSV(events []models.PaymentEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, ev := range events {
		processedAt := ""
		if ev.ProcessedAt != nil {
			processedAt = ev.ProcessedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			ev.EventID,
			ev.IdentityID,
			ev.PlanID,
			strconv.FormatInt(ev.AmountMinor, 10),
			ev.Currency,
			ev.Source,
			ev.ActorID,
			ev.ReferralCode,
			ev.Outcome,
			ev.Reason,
			processedAt,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode ledger csv: %w", err)
	}
	return buf.Bytes(), nil
}
