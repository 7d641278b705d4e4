package services

import (
	"errors"
	"log"
	"math/rand"
	"os"
	"strconv"

	"task-card-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RandSource is the single point of non-determinism in the draw algorithm.
// Production uses the shared math/rand top-level source; tests inject a
// seeded *rand.Rand so tier sampling and fallback behavior are reproducible.
type RandSource interface {
	Intn(n int) int
}

type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

// DrawConfig holds the draw tunables, all overridable via env.
type DrawConfig struct {
	DrawSize        int // cards presented per draw
	PoolFloor       int // remaining non-troll count at which history fully resets
	TierRetries     int // weighted sampling attempts before uniform fallback
	MaxEpicPerDraw  int
	MaxTrollPerDraw int
}

// DefaultDrawConfig mirrors the tournament defaults: 3-card draws, full
// history reset once 6 or fewer non-troll cards remain, 10 weighted attempts.
func DefaultDrawConfig() DrawConfig {
	return DrawConfig{
		DrawSize:        envInt("DRAW_SIZE", 3),
		PoolFloor:       envInt("DRAW_POOL_FLOOR", 6),
		TierRetries:     10,
		MaxEpicPerDraw:  1,
		MaxTrollPerDraw: 1,
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, os.Getenv(key), def)
	}
	return def
}

type DrawService struct {
	DB   *gorm.DB
	Rand RandSource
	Cfg  DrawConfig
}

func NewDrawService(db *gorm.DB) *DrawService {
	return &DrawService{DB: db, Rand: globalRand{}, Cfg: DefaultDrawConfig()}
}

// rarityPool partitions the drawable catalog by tier, already filtered by the
// captain's draw history.
type rarityPool map[models.Rarity][]models.ChallengeDefinition

// buildPool partitions active definitions by rarity, excluding non-troll
// cards whose id appears in usedIDs. Troll cards are never excluded.
func buildPool(defs []models.ChallengeDefinition, usedIDs map[string]bool) rarityPool {
	pool := rarityPool{}
	for _, def := range defs {
		if def.Rarity != models.RarityTroll && usedIDs[def.ID] {
			continue
		}
		pool[def.Rarity] = append(pool[def.Rarity], def)
	}
	return pool
}

// availableNonTroll counts the distinct non-troll definitions still drawable.
func availableNonTroll(defs []models.ChallengeDefinition, usedIDs map[string]bool) int {
	n := 0
	for _, def := range defs {
		if def.Rarity == models.RarityTroll {
			continue
		}
		if !usedIDs[def.ID] {
			n++
		}
	}
	return n
}

// sampleTier walks tiers in fixed priority order, accumulating weights until
// the cumulative weight exceeds r. Returns false when all weights are zero.
func sampleTier(settings *models.DrawSettings, rng RandSource) (models.Rarity, bool) {
	total := settings.Sum()
	if total <= 0 {
		return "", false
	}
	r := rng.Intn(total)
	cum := 0
	for _, tier := range models.DrawRarityOrder {
		cum += settings.Weight(tier)
		if cum > r {
			return tier, true
		}
	}
	return "", false
}

// pickFromTier picks uniformly from a tier, skipping cards already chosen in
// this draw. Returns nil when the tier has nothing left.
func pickFromTier(cards []models.ChallengeDefinition, chosen map[string]bool, rng RandSource) *models.ChallengeDefinition {
	candidates := make([]models.ChallengeDefinition, 0, len(cards))
	for _, card := range cards {
		if !chosen[card.ID] {
			candidates = append(candidates, card)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	card := candidates[rng.Intn(len(candidates))]
	return &card
}

// selectCards fills a draw of up to n cards. Phase one samples a tier by
// weight (bounded retries, honoring the epic/troll per-draw caps); phase two
// degrades to a uniform pick across every remaining card so the draw still
// returns min(n, available) items under pathological weights or thin pools.
func selectCards(pool rarityPool, settings *models.DrawSettings, cfg DrawConfig, rng RandSource) []models.ChallengeDefinition {
	picked := make([]models.ChallengeDefinition, 0, cfg.DrawSize)
	chosen := map[string]bool{}
	tierCount := map[models.Rarity]int{}

	capped := func(tier models.Rarity) bool {
		switch tier {
		case models.RarityEpic:
			return tierCount[tier] >= cfg.MaxEpicPerDraw
		case models.RarityTroll:
			return tierCount[tier] >= cfg.MaxTrollPerDraw
		}
		return false
	}

	for len(picked) < cfg.DrawSize {
		var card *models.ChallengeDefinition

		for attempt := 0; attempt < cfg.TierRetries; attempt++ {
			tier, ok := sampleTier(settings, rng)
			if !ok {
				break
			}
			if capped(tier) {
				continue
			}
			if card = pickFromTier(pool[tier], chosen, rng); card != nil {
				break
			}
		}

		if card == nil {
			// Uniform fallback: uncapped tiers first, then anything left at
			// all so a thin catalog still fills the draw.
			var rest []models.ChallengeDefinition
			var cappedRest []models.ChallengeDefinition
			for tier, cards := range pool {
				for _, c := range cards {
					if chosen[c.ID] {
						continue
					}
					if capped(tier) {
						cappedRest = append(cappedRest, c)
					} else {
						rest = append(rest, c)
					}
				}
			}
			if len(rest) == 0 {
				rest = cappedRest
			}
			if len(rest) == 0 {
				break
			}
			c := rest[rng.Intn(len(rest))]
			card = &c
		}

		picked = append(picked, *card)
		chosen[card.ID] = true
		tierCount[card.Rarity]++
	}
	return picked
}

// usedChallengeIDs returns the set of challenge ids presented to the captain
// and not yet invalidated.
func usedChallengeIDs(tx *gorm.DB, captainID string) (map[string]bool, error) {
	var ids []string
	if err := tx.Model(&models.DrawHistory{}).
		Where("captain_id = ? AND replaced = ?", captainID, false).
		Pluck("challenge_id", &ids).Error; err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(ids))
	for _, id := range ids {
		used[id] = true
	}
	return used, nil
}

// availablePool loads the active catalog and the captain's history, applying
// the pool-floor rule: once the remaining non-troll count drops to the floor,
// the captain's entire history is reset (replaced=true) before partitioning,
// so the catalog can never starve a captain of options.
func (s *DrawService) availablePool(tx *gorm.DB, captainID string) (rarityPool, error) {
	var defs []models.ChallengeDefinition
	if err := tx.Where("is_active = ?", true).Find(&defs).Error; err != nil {
		return nil, err
	}

	used, err := usedChallengeIDs(tx, captainID)
	if err != nil {
		return nil, err
	}

	if len(used) > 0 && availableNonTroll(defs, used) <= s.Cfg.PoolFloor {
		log.Printf("🔄 [DRAW] Pool floor reached for captain %s — resetting draw history", captainID)
		if err := tx.Model(&models.DrawHistory{}).
			Where("captain_id = ? AND replaced = ?", captainID, false).
			Update("replaced", true).Error; err != nil {
			return nil, err
		}
		used = map[string]bool{}
	}

	return buildPool(defs, used), nil
}

// GetDraw returns the captain's current state: either the open assignment or
// a fresh set of drawn cards. Non-troll picks are written to the draw history
// in the same transaction so they cannot resurface until a replace/reset.
func (s *DrawService) GetDraw(c *fiber.Ctx) error {
	captain, err := captainFromCtx(s.DB, c)
	if err != nil {
		return respondCaptainErr(c, err)
	}

	var open models.TaskAssignment
	err = s.DB.Preload("Challenge").
		Where("captain_id = ? AND status IN ?", captain.ID, openStatuses()).
		First(&open).Error
	if err == nil {
		return c.JSON(fiber.Map{
			"has_active": true,
			"assignment": open,
		})
	}
	if err != gorm.ErrRecordNotFound {
		return c.Status(500).JSON(fiber.Map{"error": "DB error fetching assignment"})
	}

	var drawn []models.ChallengeDefinition
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		settings, err := loadDrawSettings(tx)
		if err != nil {
			return err
		}

		pool, err := s.availablePool(tx, captain.ID)
		if err != nil {
			return err
		}

		drawn = selectCards(pool, settings, s.Cfg, s.Rand)

		for _, card := range drawn {
			if card.IsTroll() {
				continue
			}
			entry := models.DrawHistory{
				ID:          uuid.NewString(),
				CaptainID:   captain.ID,
				ChallengeID: card.ID,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("❌ [DRAW] Draw failed for captain %s: %v", captain.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "draw failed"})
	}

	log.Printf("🎴 [DRAW] Captain %s drew %d card(s)", captain.Username, len(drawn))
	return c.JSON(fiber.Map{
		"has_active": false,
		"challenges": drawn,
	})
}

// AcceptChallenge accepts one of the drawn cards. Troll cards are not
// assigned here: the caller must first choose a rival team via
// /mischief/target, which creates the assignment as part of the transfer.
func (s *DrawService) AcceptChallenge(c *fiber.Ctx) error {
	captain, err := captainFromCtx(s.DB, c)
	if err != nil {
		return respondCaptainErr(c, err)
	}

	var req struct {
		ChallengeID string `json:"challenge_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.ChallengeID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "challenge_id is required"})
	}

	var challenge models.ChallengeDefinition
	var requiresTarget bool
	var assignment models.TaskAssignment

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND is_active = ?", req.ChallengeID, true).
			First(&challenge).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errChallengeNotFound
			}
			return err
		}

		hasOpen, err := hasOpenAssignment(tx, captain.ID)
		if err != nil {
			return err
		}
		if hasOpen {
			return errTaskAlreadyActive
		}

		if challenge.IsTroll() {
			requiresTarget = true
			return nil
		}

		assignment = models.TaskAssignment{
			ID:          uuid.NewString(),
			CaptainID:   captain.ID,
			ChallengeID: challenge.ID,
			Status:      models.TaskStatusActive,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			// A concurrent accept that passed the count check above lands
			// on the uniq_open_task_per_captain index instead.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errTaskAlreadyActive
			}
			return err
		}
		return nil
	})
	switch err {
	case nil:
	case errChallengeNotFound:
		return c.Status(404).JSON(fiber.Map{"error": "challenge not found", "code": "challenge_not_found"})
	case errTaskAlreadyActive:
		return c.Status(409).JSON(fiber.Map{"error": "you already have an active task", "code": "task_already_active"})
	default:
		return c.Status(500).JSON(fiber.Map{"error": "accept failed"})
	}

	if requiresTarget {
		log.Printf("😈 [DRAW] Captain %s picked troll card %s — awaiting target team", captain.Username, challenge.Title)
		return c.JSON(fiber.Map{
			"ok":              true,
			"requires_target": true,
		})
	}

	log.Printf("✅ [DRAW] Captain %s accepted %q (%s, reward %d)", captain.Username, challenge.Title, challenge.Rarity, challenge.Reward)
	return c.JSON(fiber.Map{
		"ok":              true,
		"requires_target": false,
		"assignment":      assignment,
	})
}

func openStatuses() []models.TaskStatus {
	return []models.TaskStatus{models.TaskStatusActive, models.TaskStatusPending}
}

func hasOpenAssignment(tx *gorm.DB, captainID string) (bool, error) {
	var count int64
	err := tx.Model(&models.TaskAssignment{}).
		Where("captain_id = ? AND status IN ?", captainID, openStatuses()).
		Count(&count).Error
	return count > 0, err
}

// loadDrawSettings reads the weights row fresh on every draw so moderator
// updates are never served stale; a missing row falls back to the defaults.
func loadDrawSettings(tx *gorm.DB) (*models.DrawSettings, error) {
	var settings models.DrawSettings
	err := tx.First(&settings, "id = ?", models.DrawSettingsID).Error
	if err == gorm.ErrRecordNotFound {
		return defaultDrawSettings(), nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func defaultDrawSettings() *models.DrawSettings {
	return &models.DrawSettings{
		ID:           models.DrawSettingsID,
		EpicWeight:   10,
		RareWeight:   30,
		CommonWeight: 50,
		TrollWeight:  10,
	}
}
