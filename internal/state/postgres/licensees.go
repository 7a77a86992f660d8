package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

const insertLicenseeSQL = `
	INSERT INTO licensees
		(license_number, region_code, name, company, address, city, zip, phone, category, source, source_id, scraped_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	ON CONFLICT DO NOTHING;
`

// UpsertLicensees batch-inserts scraped records, skipping natural-key
// conflicts, and returns the number of new rows. Re-delivered work items
// land here repeatedly; the conflict skip is what makes them idempotent.
func (s *Store) UpsertLicensees(ctx context.Context, records []scrape.Licensee) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertLicenseeSQL,
			rec.LicenseNumber,
			rec.RegionCode,
			rec.Name,
			rec.Company,
			rec.Address,
			rec.City,
			rec.Zip,
			rec.Phone,
			rec.Category,
			rec.Source,
			rec.SourceID,
			rec.ScrapedAt,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert licensee: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
