package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gorm.io/gorm"

	"pix-reconciliation-backend/internal/models"
)

type latestVersion struct {
	Version     int
	ContentHash string
}

// saveVersions appends a new version for every record whose payload differs
// from the latest stored one. build returns the row to insert.
func saveVersions(
	ctx context.Context,
	db *gorm.DB,
	table any,
	sessionID string,
	records []models.ExtractedRecord,
	build func(rec models.ExtractedRecord, version int, hash string) any,
) (models.IngestCounts, error) {
	var counts models.IngestCounts
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			hash := contentHash(rec.Payload)

			var latest latestVersion
			res := tx.Model(table).
				Select("version", "content_hash").
				Where("session_id = ? AND record_id = ?", sessionID, rec.RecordID).
				Order("version DESC").
				Limit(1).
				Scan(&latest)
			if res.Error != nil {
				return fmt.Errorf("find latest version of %s: %w", rec.RecordID, res.Error)
			}

			version := 1
			switch {
			case res.RowsAffected == 0:
				counts.Created++
			case latest.ContentHash == hash:
				counts.Unchanged++
				continue
			default:
				version = latest.Version + 1
				counts.Versioned++
			}
			if err := tx.Create(build(rec, version, hash)).Error; err != nil {
				return fmt.Errorf("insert %s v%d: %w", rec.RecordID, version, err)
			}
		}
		return nil
	})
	return counts, err
}

func contentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
