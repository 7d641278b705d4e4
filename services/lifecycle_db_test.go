package services

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task-card-system/middleware"
	"task-card-system/models"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newTestDB opens an in-memory sqlite store with the full schema, including
// the partial unique index that backstops the one-open-assignment rule.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// One connection so every query sees the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.ChallengeDefinition{},
		&models.Team{},
		&models.Captain{},
		&models.TaskAssignment{},
		&models.MischiefTarget{},
		&models.DrawHistory{},
		&models.DrawSettings{},
		&models.Transaction{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := EnsureIndexes(db); err != nil {
		t.Fatalf("indexes: %v", err)
	}
	return db
}

func seedTeam(t *testing.T, db *gorm.DB, name string, balance int64) models.Team {
	t.Helper()
	team := models.Team{
		ID:             uuid.NewString(),
		Name:           name,
		Slug:           name,
		Balance:        balance,
		InitialBalance: balance,
	}
	if err := db.Create(&team).Error; err != nil {
		t.Fatalf("seed team %s: %v", name, err)
	}
	return team
}

func seedCaptain(t *testing.T, db *gorm.DB, team models.Team, externalID string) models.Captain {
	t.Helper()
	captain := models.Captain{
		ID:             uuid.NewString(),
		ExternalUserID: externalID,
		Username:       externalID,
		TeamID:         team.ID,
	}
	if err := db.Create(&captain).Error; err != nil {
		t.Fatalf("seed captain %s: %v", externalID, err)
	}
	return captain
}

func seedChallenge(t *testing.T, db *gorm.DB, id string, rarity models.Rarity, reward int64) models.ChallengeDefinition {
	t.Helper()
	def := makeDef(id, rarity, reward)
	if err := db.Create(&def).Error; err != nil {
		t.Fatalf("seed challenge %s: %v", id, err)
	}
	return def
}

func seedAssignment(t *testing.T, db *gorm.DB, captainID, challengeID string, status models.TaskStatus) models.TaskAssignment {
	t.Helper()
	a := models.TaskAssignment{
		ID:          uuid.NewString(),
		CaptainID:   captainID,
		ChallengeID: challengeID,
		Status:      status,
	}
	if status.IsTerminal() {
		now := time.Now()
		a.ResolvedAt = &now
	}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	return a
}

// newLifecycleApp wires the captain and moderator routes onto an in-memory
// store the way main.go does, minus the gateway auth.
func newLifecycleApp(db *gorm.DB) *fiber.App {
	app := fiber.New()
	u := middleware.UserContextMiddleware()

	draw := &DrawService{DB: db, Rand: rand.New(rand.NewSource(1)), Cfg: testDrawConfig()}
	task := &TaskService{DB: db, FreeCancels: 3, PenaltyRate: 0.2}
	mischief := &MischiefService{DB: db, ReplaceFee: 10000}
	mod := &ModeratorService{DB: db}

	app.Get("/draw", u, draw.GetDraw)
	app.Post("/draw/accept", u, draw.AcceptChallenge)
	app.Post("/draw/replace", u, mischief.ReplaceDrawSet)
	app.Post("/mischief/target", u, mischief.SelectMischiefTarget)
	app.Post("/task/submit", u, task.SubmitForReview)
	app.Post("/task/cancel", u, task.CancelActiveTask)
	app.Post("/moderator/teams", u, mod.CreateTeam)
	app.Patch("/moderator/assignments/:id/status", u, mod.SetAssignmentStatus)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, userID string, payload interface{}) *http.Response {
	t.Helper()
	var req *http.Request
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-User-ID", userID)
	req.Header.Set("X-User-Roles", "captain,moderator")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// assertLedger checks balance == initial_balance + SUM(transactions.amount)
// for one team.
func assertLedger(t *testing.T, db *gorm.DB, teamID string) {
	t.Helper()
	var team models.Team
	if err := db.First(&team, "id = ?", teamID).Error; err != nil {
		t.Fatalf("fetch team: %v", err)
	}
	var sum int64
	if err := db.Model(&models.Transaction{}).
		Where("team_id = ?", teamID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error; err != nil {
		t.Fatalf("sum transactions: %v", err)
	}
	if team.Balance != team.InitialBalance+sum {
		t.Errorf("ledger mismatch for team %s: balance %d, initial %d + sum %d = %d",
			team.Name, team.Balance, team.InitialBalance, sum, team.InitialBalance+sum)
	}
}

func countOpenAssignments(t *testing.T, db *gorm.DB, captainID string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.TaskAssignment{}).
		Where("captain_id = ? AND status IN ?", captainID, openStatuses()).
		Count(&n).Error; err != nil {
		t.Fatalf("count open assignments: %v", err)
	}
	return n
}

func TestOpenAssignmentIndex_RejectsSecondOpenRow(t *testing.T) {
	db := newTestDB(t)
	team := seedTeam(t, db, "alpha", 100000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	ch1 := seedChallenge(t, db, "c1", models.RarityCommon, 5000)
	ch2 := seedChallenge(t, db, "c2", models.RarityCommon, 5000)

	seedAssignment(t, db, captain.ID, ch1.ID, models.TaskStatusActive)

	second := models.TaskAssignment{
		ID:          uuid.NewString(),
		CaptainID:   captain.ID,
		ChallengeID: ch2.ID,
		Status:      models.TaskStatusActive,
	}
	if err := db.Create(&second).Error; err == nil {
		t.Fatal("second open assignment was inserted; the unique index should reject it")
	}
	if n := countOpenAssignments(t, db, captain.ID); n != 1 {
		t.Fatalf("open assignments = %d, want 1", n)
	}

	// Terminal rows are outside the index and stack freely.
	seedAssignment(t, db, captain.ID, ch2.ID, models.TaskStatusCompleted)
	seedAssignment(t, db, captain.ID, ch2.ID, models.TaskStatusCancelled)
}

func TestAcceptChallenge_SecondAcceptConflicts(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	team := seedTeam(t, db, "alpha", 100000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	ch1 := seedChallenge(t, db, "c1", models.RarityCommon, 5000)
	ch2 := seedChallenge(t, db, "c2", models.RarityCommon, 5000)

	resp := doJSON(t, app, "POST", "/draw/accept", captain.ExternalUserID, fiber.Map{"challenge_id": ch1.ID})
	if resp.StatusCode != 200 {
		t.Fatalf("first accept: status %d, want 200", resp.StatusCode)
	}
	resp = doJSON(t, app, "POST", "/draw/accept", captain.ExternalUserID, fiber.Map{"challenge_id": ch2.ID})
	if resp.StatusCode != 409 {
		t.Fatalf("second accept: status %d, want 409", resp.StatusCode)
	}
	if n := countOpenAssignments(t, db, captain.ID); n != 1 {
		t.Fatalf("open assignments = %d, want 1", n)
	}
}

func TestMischiefTarget_TransfersAndReconciles(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	alpha := seedTeam(t, db, "alpha", 100000)
	beta := seedTeam(t, db, "beta", 50000)
	captain := seedCaptain(t, db, alpha, "cap-alpha")
	troll := seedChallenge(t, db, "troll-1", models.RarityTroll, -10000)

	resp := doJSON(t, app, "POST", "/mischief/target", captain.ExternalUserID, fiber.Map{
		"challenge_id":   troll.ID,
		"target_team_id": beta.ID,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("mischief: status %d, want 200", resp.StatusCode)
	}
	var body struct {
		NewBalance int64 `json:"new_balance"`
	}
	decodeBody(t, resp, &body)
	if body.NewBalance != 110000 {
		t.Errorf("new_balance = %d, want 110000", body.NewBalance)
	}

	var a, b models.Team
	db.First(&a, "id = ?", alpha.ID)
	db.First(&b, "id = ?", beta.ID)
	if a.Balance != 110000 || b.Balance != 40000 {
		t.Errorf("balances = %d/%d, want 110000/40000", a.Balance, b.Balance)
	}

	var assignment models.TaskAssignment
	if err := db.First(&assignment, "captain_id = ?", captain.ID).Error; err != nil {
		t.Fatalf("fetch assignment: %v", err)
	}
	if assignment.Status != models.TaskStatusCompleted || assignment.ResolvedAt == nil {
		t.Errorf("assignment = %s (resolved %v), want completed with resolved_at", assignment.Status, assignment.ResolvedAt)
	}
	var mt models.MischiefTarget
	if err := db.First(&mt, "assignment_id = ?", assignment.ID).Error; err != nil {
		t.Fatalf("mischief target row missing: %v", err)
	}
	if mt.TargetTeamID != beta.ID {
		t.Errorf("target team = %s, want %s", mt.TargetTeamID, beta.ID)
	}

	assertLedger(t, db, alpha.ID)
	assertLedger(t, db, beta.ID)
}

func TestMischiefTarget_BlockedByOpenTask(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	alpha := seedTeam(t, db, "alpha", 100000)
	beta := seedTeam(t, db, "beta", 50000)
	captain := seedCaptain(t, db, alpha, "cap-alpha")
	task := seedChallenge(t, db, "c1", models.RarityCommon, 5000)
	troll := seedChallenge(t, db, "troll-1", models.RarityTroll, -10000)
	seedAssignment(t, db, captain.ID, task.ID, models.TaskStatusActive)

	resp := doJSON(t, app, "POST", "/mischief/target", captain.ExternalUserID, fiber.Map{
		"challenge_id":   troll.ID,
		"target_team_id": beta.ID,
	})
	if resp.StatusCode != 409 {
		t.Fatalf("mischief with open task: status %d, want 409", resp.StatusCode)
	}

	var a, b models.Team
	db.First(&a, "id = ?", alpha.ID)
	db.First(&b, "id = ?", beta.ID)
	if a.Balance != 100000 || b.Balance != 50000 {
		t.Errorf("balances changed to %d/%d despite rejection", a.Balance, b.Balance)
	}
}

func TestMarkSubmitted_DoesNotReopenResolvedAssignment(t *testing.T) {
	db := newTestDB(t)
	team := seedTeam(t, db, "alpha", 100000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	ch := seedChallenge(t, db, "c1", models.RarityCommon, 5000)
	assignment := seedAssignment(t, db, captain.ID, ch.ID, models.TaskStatusActive)

	// A moderator cancels between the captain's read and the write.
	resolved := time.Now()
	if err := db.Model(&models.TaskAssignment{}).
		Where("id = ?", assignment.ID).
		Updates(map[string]interface{}{
			"status":      models.TaskStatusCancelled,
			"resolved_at": &resolved,
		}).Error; err != nil {
		t.Fatalf("resolve assignment: %v", err)
	}

	err := markSubmitted(db, assignment.ID, "https://cdn.example/proof.jpg", time.Now())
	if err != errNoActiveTask {
		t.Fatalf("markSubmitted on resolved row: err = %v, want errNoActiveTask", err)
	}

	var got models.TaskAssignment
	db.First(&got, "id = ?", assignment.ID)
	if got.Status != models.TaskStatusCancelled {
		t.Errorf("status = %s, the cancelled verdict must stand", got.Status)
	}
	if got.SubmittedAt != nil || got.ResolvedAt == nil {
		t.Errorf("submitted_at=%v resolved_at=%v, want nil/non-nil", got.SubmittedAt, got.ResolvedAt)
	}
}

func TestMarkSubmitted_MovesActiveToPending(t *testing.T) {
	db := newTestDB(t)
	team := seedTeam(t, db, "alpha", 100000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	ch := seedChallenge(t, db, "c1", models.RarityCommon, 5000)
	assignment := seedAssignment(t, db, captain.ID, ch.ID, models.TaskStatusActive)

	if err := markSubmitted(db, assignment.ID, "https://cdn.example/proof.jpg", time.Now()); err != nil {
		t.Fatalf("markSubmitted: %v", err)
	}

	var got models.TaskAssignment
	db.First(&got, "id = ?", assignment.ID)
	if got.Status != models.TaskStatusPending || got.SubmittedAt == nil {
		t.Errorf("status=%s submitted_at=%v, want pending with timestamp", got.Status, got.SubmittedAt)
	}
	if got.ProofURL != "https://cdn.example/proof.jpg" {
		t.Errorf("proof_url = %q", got.ProofURL)
	}
}

func TestReplace_InsufficientFundsLeavesEverythingUntouched(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	team := seedTeam(t, db, "alpha", 9000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	ch := seedChallenge(t, db, "c1", models.RarityCommon, 5000)
	db.Create(&models.DrawHistory{ID: uuid.NewString(), CaptainID: captain.ID, ChallengeID: ch.ID})

	resp := doJSON(t, app, "POST", "/draw/replace", captain.ExternalUserID, nil)
	if resp.StatusCode != 402 {
		t.Fatalf("replace with 9000 balance: status %d, want 402", resp.StatusCode)
	}

	var got models.Team
	db.First(&got, "id = ?", team.ID)
	if got.Balance != 9000 {
		t.Errorf("balance = %d, want untouched 9000", got.Balance)
	}
	var history models.DrawHistory
	db.First(&history, "captain_id = ?", captain.ID)
	if history.Replaced {
		t.Error("history was invalidated despite the failed debit")
	}
	var txCount int64
	db.Model(&models.Transaction{}).Where("team_id = ?", team.ID).Count(&txCount)
	if txCount != 0 {
		t.Errorf("transactions = %d, want 0", txCount)
	}
}

func TestReplace_ChargesFeeAndInvalidatesHistory(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	team := seedTeam(t, db, "alpha", 20000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	ch := seedChallenge(t, db, "c1", models.RarityCommon, 5000)
	db.Create(&models.DrawHistory{ID: uuid.NewString(), CaptainID: captain.ID, ChallengeID: ch.ID})

	resp := doJSON(t, app, "POST", "/draw/replace", captain.ExternalUserID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("replace: status %d, want 200", resp.StatusCode)
	}

	var got models.Team
	db.First(&got, "id = ?", team.ID)
	if got.Balance != 10000 {
		t.Errorf("balance = %d, want 10000", got.Balance)
	}
	var history models.DrawHistory
	db.First(&history, "captain_id = ?", captain.ID)
	if !history.Replaced {
		t.Error("history row not invalidated")
	}
	var fee models.Transaction
	if err := db.First(&fee, "team_id = ? AND type = ?", team.ID, models.TransactionTypeReplaceFee).Error; err != nil {
		t.Fatalf("replace_fee transaction missing: %v", err)
	}
	if fee.Amount != -10000 {
		t.Errorf("fee amount = %d, want -10000", fee.Amount)
	}
	assertLedger(t, db, team.ID)
}

func TestSetAssignmentStatus_CompleteCreditsOnce(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	team := seedTeam(t, db, "alpha", 100000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	ch := seedChallenge(t, db, "c1", models.RarityRare, 7500)
	assignment := seedAssignment(t, db, captain.ID, ch.ID, models.TaskStatusPending)

	path := "/moderator/assignments/" + assignment.ID + "/status"
	resp := doJSON(t, app, "PATCH", path, "mod-1", fiber.Map{"status": "completed"})
	if resp.StatusCode != 200 {
		t.Fatalf("complete: status %d, want 200", resp.StatusCode)
	}

	var got models.Team
	db.First(&got, "id = ?", team.ID)
	if got.Balance != 107500 || got.CompletedCount != 1 {
		t.Errorf("balance=%d completed=%d, want 107500/1", got.Balance, got.CompletedCount)
	}
	assertLedger(t, db, team.ID)

	// A second verdict hits a terminal row and must not credit again.
	resp = doJSON(t, app, "PATCH", path, "mod-1", fiber.Map{"status": "completed"})
	if resp.StatusCode != 400 {
		t.Fatalf("repeat complete: status %d, want 400", resp.StatusCode)
	}
	db.First(&got, "id = ?", team.ID)
	if got.Balance != 107500 || got.CompletedCount != 1 {
		t.Errorf("repeat verdict changed team to balance=%d completed=%d", got.Balance, got.CompletedCount)
	}
}

func TestSetAssignmentStatus_UnknownAssignment(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)

	resp := doJSON(t, app, "PATCH", "/moderator/assignments/"+uuid.NewString()+"/status", "mod-1", fiber.Map{"status": "completed"})
	if resp.StatusCode != 404 {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestCreateTeam_UnknownCaptainRollsBack(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)

	resp := doJSON(t, app, "POST", "/moderator/teams", "mod-1", fiber.Map{
		"name":                     "gamma",
		"initial_balance":          100000,
		"captain_external_user_id": "no-such-captain",
	})
	if resp.StatusCode != 400 {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &body)
	if body.Code != "captain_not_found" {
		t.Errorf("code = %q, want captain_not_found", body.Code)
	}

	var count int64
	db.Model(&models.Team{}).Where("name = ?", "gamma").Count(&count)
	if count != 0 {
		t.Error("team row survived the rolled-back captain link")
	}
}

func TestCreateTeam_LinksCaptain(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	captain := models.Captain{ID: uuid.NewString(), ExternalUserID: "cap-new", Username: "cap-new"}
	if err := db.Create(&captain).Error; err != nil {
		t.Fatalf("seed captain: %v", err)
	}

	resp := doJSON(t, app, "POST", "/moderator/teams", "mod-1", fiber.Map{
		"name":                     "gamma",
		"initial_balance":          100000,
		"captain_external_user_id": "cap-new",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("status %d, want 201", resp.StatusCode)
	}

	var got models.Captain
	db.First(&got, "id = ?", captain.ID)
	var team models.Team
	db.First(&team, "name = ?", "gamma")
	if got.TeamID != team.ID {
		t.Errorf("captain team_id = %q, want %q", got.TeamID, team.ID)
	}
}

func TestGetDraw_PoolFloorResetsHistory(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	team := seedTeam(t, db, "alpha", 100000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	for i := 0; i < 8; i++ {
		seedChallenge(t, db, "common-"+string(rune('a'+i)), models.RarityCommon, 5000)
	}

	// Two unreplaced history rows leave 6 drawable cards, at the floor.
	old1 := models.DrawHistory{ID: uuid.NewString(), CaptainID: captain.ID, ChallengeID: "common-a"}
	old2 := models.DrawHistory{ID: uuid.NewString(), CaptainID: captain.ID, ChallengeID: "common-b"}
	db.Create(&old1)
	db.Create(&old2)

	resp := doJSON(t, app, "GET", "/draw", captain.ExternalUserID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("draw: status %d, want 200", resp.StatusCode)
	}

	for _, id := range []string{old1.ID, old2.ID} {
		var row models.DrawHistory
		db.First(&row, "id = ?", id)
		if !row.Replaced {
			t.Errorf("history row %s not reset at the pool floor", id)
		}
	}
	var fresh int64
	db.Model(&models.DrawHistory{}).
		Where("captain_id = ? AND replaced = ?", captain.ID, false).
		Count(&fresh)
	if fresh != 3 {
		t.Errorf("fresh history rows = %d, want 3", fresh)
	}
}

func TestGetDraw_SkipsUsedCards(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	team := seedTeam(t, db, "alpha", 100000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	for i := 0; i < 10; i++ {
		seedChallenge(t, db, "common-"+string(rune('a'+i)), models.RarityCommon, 5000)
	}

	used := map[string]bool{"common-a": true, "common-b": true, "common-c": true}
	for id := range used {
		db.Create(&models.DrawHistory{ID: uuid.NewString(), CaptainID: captain.ID, ChallengeID: id})
	}

	resp := doJSON(t, app, "GET", "/draw", captain.ExternalUserID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("draw: status %d, want 200", resp.StatusCode)
	}
	var body struct {
		HasActive  bool                         `json:"has_active"`
		Challenges []models.ChallengeDefinition `json:"challenges"`
	}
	decodeBody(t, resp, &body)
	if body.HasActive {
		t.Fatal("has_active = true with no assignment")
	}
	if len(body.Challenges) != 3 {
		t.Fatalf("drew %d cards, want 3", len(body.Challenges))
	}
	for _, ch := range body.Challenges {
		if used[ch.ID] {
			t.Errorf("drew %s, already in unreplaced history", ch.ID)
		}
	}
}

func TestGetDraw_ReturnsOpenAssignment(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	team := seedTeam(t, db, "alpha", 100000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	ch := seedChallenge(t, db, "c1", models.RarityCommon, 5000)
	seedAssignment(t, db, captain.ID, ch.ID, models.TaskStatusActive)

	resp := doJSON(t, app, "GET", "/draw", captain.ExternalUserID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("draw: status %d, want 200", resp.StatusCode)
	}
	var body struct {
		HasActive bool `json:"has_active"`
	}
	decodeBody(t, resp, &body)
	if !body.HasActive {
		t.Error("has_active = false with an active assignment")
	}
}

func TestCancelActiveTask_PenaltyDebitedAndReconciled(t *testing.T) {
	db := newTestDB(t)
	app := newLifecycleApp(db)
	team := seedTeam(t, db, "alpha", 100000)
	captain := seedCaptain(t, db, team, "cap-alpha")
	ch := seedChallenge(t, db, "c1", models.RarityCommon, 5000)

	// Free allowance already spent.
	for i := 0; i < 3; i++ {
		seedAssignment(t, db, captain.ID, ch.ID, models.TaskStatusCancelled)
	}
	seedAssignment(t, db, captain.ID, ch.ID, models.TaskStatusActive)

	resp := doJSON(t, app, "POST", "/task/cancel", captain.ExternalUserID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("cancel: status %d, want 200", resp.StatusCode)
	}
	var body struct {
		PenaltyApplied bool  `json:"penalty_applied"`
		PenaltyAmount  int64 `json:"penalty_amount"`
	}
	decodeBody(t, resp, &body)
	if !body.PenaltyApplied || body.PenaltyAmount != 1000 {
		t.Errorf("penalty = %v/%d, want true/1000", body.PenaltyApplied, body.PenaltyAmount)
	}

	var got models.Team
	db.First(&got, "id = ?", team.ID)
	if got.Balance != 99000 {
		t.Errorf("balance = %d, want 99000", got.Balance)
	}
	var penalty models.Transaction
	if err := db.First(&penalty, "team_id = ? AND type = ?", team.ID, models.TransactionTypeCancelPenalty).Error; err != nil {
		t.Fatalf("cancel_penalty transaction missing: %v", err)
	}
	assertLedger(t, db, team.ID)
}
