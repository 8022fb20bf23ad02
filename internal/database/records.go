package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

const (
	AggregateSellerProduct   = "seller_product"
	EventSellerRecordScraped = "SELLER_RECORD_SCRAPED"
)

// RecordEvent is the payload published for every scraped record.
type RecordEvent struct {
	RunID     string               `json:"run_id"`
	Keyword   string               `json:"keyword"`
	ScrapedAt time.Time            `json:"scraped_at"`
	Record    models.ProductRecord `json:"record"`
}

// RecordStore upserts scraped records and queues an outbox event for each
// in the same transaction.
type RecordStore struct {
	db     *DB
	outbox *OutboxRepository
	run    models.RunInfo
	logger *slog.Logger
}

func NewRecordStore(db *DB, run models.RunInfo, logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{
		db:     db,
		outbox: NewOutboxRepository(db),
		run:    run,
		logger: logger.With("component", "record-store", "run_id", run.ID),
	}
}

// Save stores rec. Its signature matches the result set hook, so it can be
// passed to storage.NewResultSet directly.
func (s *RecordStore) Save(ctx context.Context, rec models.ProductRecord) error {
	key := productKey(rec)
	if key == "" {
		return fmt.Errorf("record has neither ASIN nor product URL")
	}

	event, err := recordEvent(s.run, key, rec, time.Now())
	if err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := upsertRecord(ctx, tx, s.run, key, rec); err != nil {
			return err
		}
		return s.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", key, err)
	}

	s.logger.Debug("record stored", "key", key, "event_id", event.ID)
	return nil
}

// productKey identifies a product across runs: the ASIN when known,
// otherwise the product URL.
func productKey(rec models.ProductRecord) string {
	if rec.ASIN != "" {
		return rec.ASIN
	}
	return rec.ProductURL
}

func recordEvent(run models.RunInfo, key string, rec models.ProductRecord, now time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(RecordEvent{
		RunID:     run.ID,
		Keyword:   run.Keyword,
		ScrapedAt: now.UTC(),
		Record:    rec,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record event: %w", err)
	}

	return &OutboxEvent{
		AggregateType: AggregateSellerProduct,
		AggregateID:   key,
		EventType:     EventSellerRecordScraped,
		Payload:       payload,
		TargetStream:  SellerRecordStream,
	}, nil
}

func upsertRecord(ctx context.Context, tx pgx.Tx, run models.RunInfo, key string, rec models.ProductRecord) error {
	query := `
		INSERT INTO seller_products (
			product_key, run_id, keyword, title, product_url, asin, price,
			brand, review_count, bought_count, badge, merchant, seller_link,
			store_rating, company_name, phone, address, seller_country,
			email, company_url, about
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (product_key) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			keyword = EXCLUDED.keyword,
			title = EXCLUDED.title,
			product_url = EXCLUDED.product_url,
			asin = EXCLUDED.asin,
			price = EXCLUDED.price,
			brand = EXCLUDED.brand,
			review_count = EXCLUDED.review_count,
			bought_count = EXCLUDED.bought_count,
			badge = EXCLUDED.badge,
			merchant = EXCLUDED.merchant,
			seller_link = EXCLUDED.seller_link,
			store_rating = EXCLUDED.store_rating,
			company_name = EXCLUDED.company_name,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			seller_country = EXCLUDED.seller_country,
			email = EXCLUDED.email,
			company_url = EXCLUDED.company_url,
			about = EXCLUDED.about,
			last_seen_at = NOW()`

	_, err := tx.Exec(ctx, query,
		key, run.ID, run.Keyword, rec.Title, rec.ProductURL, rec.ASIN, rec.Price,
		rec.Brand, rec.ReviewCount, rec.BoughtCount, rec.Badge, rec.Merchant, rec.SellerLink,
		rec.StoreRating, rec.CompanyName, rec.Phone, rec.Address, rec.SellerCountry,
		rec.Email, rec.CompanyURL, rec.About,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert seller product: %w", err)
	}
	return nil
}
