// workers/captain_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"task-card-system/models"
	"task-card-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirroredCaptainProfile matches the JSON the profile service returns for
// captain-role users. Credentials and sessions stay upstream; only the
// display fields needed to label teams are mirrored here.
type MirroredCaptainProfile struct {
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type captainChangesResponse struct {
	Captains []MirroredCaptainProfile `json:"captains"`
}

// CaptainSyncWorker mirrors captain profiles from the profile service into
// the local captains table so handlers can join gateway user ids to teams
// without a cross-service call per request.
type CaptainSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
}

func NewCaptainSyncWorker(db *gorm.DB, profileServiceBaseURL, endpointPath, serviceToken string) *CaptainSyncWorker {
	return &CaptainSyncWorker{
		db:           db,
		interval:     1 * time.Minute,
		baseURL:      profileServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
	}
}

func (w *CaptainSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Captain Sync Worker (profile service → captains)…")
	go w.run(ctx)
}

func (w *CaptainSyncWorker) run(ctx context.Context) {
	// Initial backfill from the beginning of time.
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ Initial captain sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
				log.Printf("❌ Captain sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Captain Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime finds the most recent UpdatedAt in the local captains table.
func (w *CaptainSyncWorker) getLastSyncTime() time.Time {
	var lastTime time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM captains").Scan(&lastTime).Error
	if err != nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return lastTime
}

func (w *CaptainSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid profile service URL '%s': %w", w.baseURL, err)
	}

	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("role", "captain")
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpointURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := utils.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call profile service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("profile service returned status %d: %s", resp.StatusCode, string(body))
	}

	var changes captainChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&changes); err != nil {
		return fmt.Errorf("failed to decode profile service response: %w", err)
	}
	if len(changes.Captains) == 0 {
		return nil
	}

	captains := make([]models.Captain, len(changes.Captains))
	for i, p := range changes.Captains {
		captains[i] = models.Captain{
			ID:             uuid.NewString(),
			ExternalUserID: p.ExternalID,
			Username:       p.Username,
			AvatarURL:      p.AvatarURL,
		}
	}

	// Upsert keyed on external_user_id; team links are moderator-managed and
	// must survive profile updates.
	if err := w.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username",
			"avatar_url",
			"updated_at",
		}),
	}).Create(&captains).Error; err != nil {
		return fmt.Errorf("failed to upsert %d captain(s): %w", len(captains), err)
	}

	log.Printf("📥 [SYNC] Upserted %d captain profile(s)", len(captains))
	return nil
}
