package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arnold/stakeit-api/internal/apperr"
	"github.com/arnold/stakeit-api/internal/database"
	"github.com/arnold/stakeit-api/internal/models"
	"github.com/arnold/stakeit-api/internal/payments"
	"github.com/arnold/stakeit-api/internal/processor/processortest"
	"github.com/arnold/stakeit-api/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type testEnv struct {
	store    *repository.Store
	fake     *processortest.Fake
	goals    *GoalService
	checkIns *CheckInService
	payments *PaymentService
	users    *UserService
	user     *models.User
}

// setupTestEnv wires the services over a fresh SQLite database with the
// clock fixed at noon UTC on today.
func setupTestEnv(t *testing.T, today string) *testEnv {
	t.Helper()
	db, err := database.Connect(database.Options{URL: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	now, err := time.Parse(time.RFC3339, today+"T12:00:00Z")
	if err != nil {
		t.Fatalf("bad test date %q: %v", today, err)
	}
	clock := Clock(func() time.Time { return now })

	store := repository.New(db)
	fake := processortest.New()
	orch := payments.New(fake, payments.Options{Currency: "usd", Charity: "GiveDirectly", Timeout: time.Second, Now: clock})
	notifier := NewNotifier(store, NewPush(context.Background(), "", store))

	env := &testEnv{
		store: store,
		fake:  fake,
		users: NewUserService(store),
	}
	env.goals = NewGoalService(store, orch, clock)
	env.checkIns = NewCheckInService(store, env.goals, orch, notifier, clock)
	env.payments = NewPaymentService(store, orch, notifier)

	env.user = env.newUser(t)
	return env
}

func (e *testEnv) newUser(t *testing.T) *models.User {
	t.Helper()
	user, err := e.users.Register(context.Background(), models.RegisterRequest{
		Email:    uuid.NewString() + "@example.com",
		Password: "hunter22",
		Name:     "Test",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return user
}

func (e *testEnv) newGoal(t *testing.T, stake int64, days int, start string) *models.Goal {
	t.Helper()
	goal, err := e.goals.Create(context.Background(), e.user.ID, models.CreateGoalRequest{
		Title:            "Write 500 words",
		DurationDays:     days,
		TotalStakeAmount: decimal.NewFromInt(stake),
		StartDate:        &start,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return goal
}

func (e *testEnv) submit(goalID uuid.UUID, outcome models.Outcome, date string) (*models.CheckInResult, error) {
	return e.checkIns.Submit(context.Background(), e.user.ID, goalID, models.SubmitCheckInRequest{
		Outcome: outcome,
		Date:    &date,
	})
}

func (e *testEnv) reload(t *testing.T, goalID uuid.UUID) *models.Goal {
	t.Helper()
	goal, err := e.store.GetGoal(context.Background(), goalID)
	if err != nil {
		t.Fatal(err)
	}
	return goal
}

func (e *testEnv) penalties(t *testing.T, goalID uuid.UUID) []models.Payment {
	t.Helper()
	list, err := e.store.ListPayments(context.Background(), repository.PaymentFilter{
		GoalID: &goalID,
		Types:  []models.PaymentType{models.PaymentTypeFailurePenalty},
	})
	if err != nil {
		t.Fatal(err)
	}
	return list
}

func TestThirtyDayGoalScenario(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")

	if !goal.DailyStakeAmount.Equal(decimal.RequireFromString("1.00")) {
		t.Fatalf("DailyStakeAmount = %s, want 1.00", goal.DailyStakeAmount)
	}
	if goal.EndDate != "2026-05-30" {
		t.Errorf("EndDate = %s, want 2026-05-30", goal.EndDate)
	}
	if goal.Status != models.GoalStatusActive {
		t.Errorf("Status = %s, want active", goal.Status)
	}

	day1, err := env.submit(goal.ID, models.OutcomeCompleted, "2026-05-01")
	if err != nil {
		t.Fatalf("day 1: %v", err)
	}
	if day1.CheckIn.StreakCount != 1 {
		t.Errorf("day 1 StreakCount = %d, want 1", day1.CheckIn.StreakCount)
	}
	if day1.Payment != nil {
		t.Error("completed check-in produced a payment")
	}

	day2, err := env.submit(goal.ID, models.OutcomeFailed, "2026-05-02")
	if err != nil {
		t.Fatalf("day 2: %v", err)
	}
	if day2.PaymentError != nil {
		t.Fatalf("day 2 payment error: %+v", day2.PaymentError)
	}
	if day2.CheckIn.StreakCount != 0 || !day2.CheckIn.PaymentProcessed {
		t.Errorf("day 2 check-in = %+v", day2.CheckIn)
	}

	stored := env.reload(t, goal.ID)
	if !stored.TotalPaid.Equal(decimal.RequireFromString("1.00")) {
		t.Errorf("TotalPaid = %s, want 1.00", stored.TotalPaid)
	}
	if stored.SuccessfulDays != 1 || stored.FailedDays != 1 || stored.CurrentStreak != 0 || stored.LongestStreak != 1 {
		t.Errorf("counters = %+v", stored.Counters())
	}

	penalties := env.penalties(t, goal.ID)
	if len(penalties) != 1 || penalties[0].Status != models.PaymentStatusCompleted {
		t.Fatalf("penalties = %+v, want one completed", penalties)
	}
	if penalties[0].CheckInID == nil || *penalties[0].CheckInID != day2.CheckIn.ID {
		t.Error("penalty does not reference its check-in")
	}

	_, err = env.submit(goal.ID, models.OutcomeCompleted, "2026-05-02")
	if !apperr.Is(err, apperr.KindDuplicateCheckIn) {
		t.Fatalf("duplicate day 2: error = %v, want DuplicateCheckIn", err)
	}
	if n := len(env.penalties(t, goal.ID)); n != 1 {
		t.Errorf("%d penalties after duplicate, want 1", n)
	}
	if env.fake.ChargeCount() != 1 {
		t.Errorf("processor charged %d times, want 1", env.fake.ChargeCount())
	}

	stats, err := env.goals.Stats(context.Background(), env.user.ID, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Drift {
		t.Errorf("unexpected drift: cached %+v recomputed %+v", stats.Cached, stats.Counters())
	}
	if stats.CompletionRate != 50 || stats.DaysRemaining != 29 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestConcurrentSubmissionsForSameDay(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.submit(goal.ID, models.OutcomeFailed, "2026-05-02")
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.KindDuplicateCheckIn):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Fatalf("got %d successes and %d duplicates, want 1 and 1", ok, dup)
	}
	if n := len(env.penalties(t, goal.ID)); n != 1 {
		t.Errorf("%d penalties, want 1", n)
	}
	if env.fake.ChargeCount() != 1 {
		t.Errorf("processor charged %d times, want 1", env.fake.ChargeCount())
	}
}

func TestDeclinedPenaltyKeepsCheckIn(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")
	env.fake.Set(func(f *processortest.Fake) { f.Decline = true })

	res, err := env.submit(goal.ID, models.OutcomeFailed, "2026-05-02")
	if err != nil {
		t.Fatalf("Submit() error = %v, decline must not fail the check-in", err)
	}
	if res.PaymentError == nil || res.PaymentError.Kind != string(apperr.KindProcessorDeclined) {
		t.Fatalf("PaymentError = %+v, want processor_declined", res.PaymentError)
	}
	if res.PaymentError.Retryable {
		t.Error("a decline is not retryable as-is")
	}
	if res.CheckIn.PaymentProcessed {
		t.Error("check-in marked processed after decline")
	}

	stored := env.reload(t, goal.ID)
	if stored.FailedDays != 1 || !stored.TotalPaid.IsZero() {
		t.Errorf("counters after decline = %+v", stored.Counters())
	}
	penalties := env.penalties(t, goal.ID)
	if len(penalties) != 1 || penalties[0].Status != models.PaymentStatusFailed || penalties[0].FailureReason == nil {
		t.Errorf("penalties = %+v, want one failed with reason", penalties)
	}

	// Retry once the card works.
	env.fake.Set(func(f *processortest.Fake) { f.Decline = false })
	retry, err := env.checkIns.ChargePenalty(context.Background(), env.user.ID, res.CheckIn.ID)
	if err != nil {
		t.Fatalf("ChargePenalty() error = %v", err)
	}
	if retry.PaymentError != nil || !retry.CheckIn.PaymentProcessed {
		t.Errorf("retry result = %+v", retry)
	}
	if got := env.reload(t, goal.ID).TotalPaid; !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("TotalPaid after retry = %s, want 1", got)
	}

	// Retrying a settled check-in is a no-op.
	if _, err := env.checkIns.ChargePenalty(context.Background(), env.user.ID, res.CheckIn.ID); err != nil {
		t.Fatal(err)
	}
	if env.fake.ChargeCount() != 2 {
		t.Errorf("processor charged %d times, want 2", env.fake.ChargeCount())
	}
	if got := env.reload(t, goal.ID).TotalPaid; !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("TotalPaid after repeat = %s, want 1", got)
	}
}

func TestMissingPaymentMethodKeepsCheckIn(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")
	env.fake.Set(func(f *processortest.Fake) { f.NoInstrument = true })

	res, err := env.submit(goal.ID, models.OutcomeFailed, "2026-05-02")
	if err != nil {
		t.Fatal(err)
	}
	if res.PaymentError == nil || res.PaymentError.Kind != string(apperr.KindPaymentMethodRequired) {
		t.Errorf("PaymentError = %+v, want payment_method_required", res.PaymentError)
	}
	if env.fake.ChargeCount() != 0 {
		t.Error("charged without an instrument")
	}
}

func TestUnstakedGoalNeverCharges(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 0, 10, "2026-05-01")

	res, err := env.submit(goal.ID, models.OutcomeFailed, "2026-05-02")
	if err != nil {
		t.Fatal(err)
	}
	if res.Payment != nil || res.PaymentError != nil {
		t.Errorf("unstaked failure produced payment activity: %+v", res)
	}
	if env.fake.ChargeCount() != 0 {
		t.Error("processor called for an unstaked goal")
	}
}

func TestUpdateFlipToFailedCharges(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")
	ctx := context.Background()

	res, err := env.submit(goal.ID, models.OutcomeCompleted, "2026-05-02")
	if err != nil {
		t.Fatal(err)
	}

	failed := false
	updated, err := env.checkIns.Update(ctx, env.user.ID, res.CheckIn.ID, models.UpdateCheckInRequest{Completed: &failed})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Payment == nil || updated.Payment.Status != models.PaymentStatusCompleted {
		t.Fatalf("flip to failed did not charge: %+v", updated)
	}
	if updated.CheckIn.StreakCount != 0 {
		t.Errorf("StreakCount = %d, want 0", updated.CheckIn.StreakCount)
	}
	stored := env.reload(t, goal.ID)
	if stored.SuccessfulDays != 0 || stored.FailedDays != 1 || !stored.TotalPaid.Equal(decimal.NewFromInt(1)) {
		t.Errorf("counters after flip = %+v", stored.Counters())
	}

	// Flipping back never reverses the charge.
	completed := true
	note := "actually did it"
	back, err := env.checkIns.Update(ctx, env.user.ID, res.CheckIn.ID, models.UpdateCheckInRequest{Completed: &completed, Notes: &note})
	if err != nil {
		t.Fatal(err)
	}
	if back.CheckIn.StreakCount != 1 || back.CheckIn.Notes == nil || *back.CheckIn.Notes != note {
		t.Errorf("check-in after flip back = %+v", back.CheckIn)
	}
	if env.fake.RefundCount() != 0 || env.fake.ChargeCount() != 1 {
		t.Errorf("flip back moved money: %d charges, %d refunds", env.fake.ChargeCount(), env.fake.RefundCount())
	}
	stored = env.reload(t, goal.ID)
	if stored.SuccessfulDays != 1 || stored.FailedDays != 0 || !stored.TotalPaid.Equal(decimal.NewFromInt(1)) {
		t.Errorf("counters after flip back = %+v", stored.Counters())
	}

	// Failing again does not charge a second time.
	if _, err := env.checkIns.Update(ctx, env.user.ID, res.CheckIn.ID, models.UpdateCheckInRequest{Completed: &failed}); err != nil {
		t.Fatal(err)
	}
	if env.fake.ChargeCount() != 1 || len(env.penalties(t, goal.ID)) != 1 {
		t.Error("second flip to failed charged again")
	}
}

// Deleting a check-in is deliberately non-retroactive: counters and
// payments stay, and the drift is visible in Stats until Reconcile runs.
func TestDeleteIsNonRetroactive(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")
	ctx := context.Background()

	res, err := env.submit(goal.ID, models.OutcomeFailed, "2026-05-02")
	if err != nil {
		t.Fatal(err)
	}

	if err := env.checkIns.Delete(ctx, env.user.ID, res.CheckIn.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	stored := env.reload(t, goal.ID)
	if stored.FailedDays != 1 || !stored.TotalPaid.Equal(decimal.NewFromInt(1)) {
		t.Errorf("delete changed counters: %+v", stored.Counters())
	}
	penalties := env.penalties(t, goal.ID)
	if len(penalties) != 1 || penalties[0].Status != models.PaymentStatusCompleted {
		t.Errorf("delete touched the penalty: %+v", penalties)
	}

	stats, err := env.goals.Stats(ctx, env.user.ID, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Drift {
		t.Error("expected drift to be reported after delete")
	}
	if stats.FailedDays != 0 || stats.Cached.FailedDays != 1 {
		t.Errorf("stats = %+v", stats)
	}

	fixed, err := env.goals.Reconcile(ctx, env.user.ID, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fixed.Drift {
		t.Error("drift after reconcile")
	}
	stored = env.reload(t, goal.ID)
	if stored.FailedDays != 0 || !stored.TotalPaid.Equal(decimal.NewFromInt(1)) {
		t.Errorf("counters after reconcile = %+v", stored.Counters())
	}

	if err := env.checkIns.Delete(ctx, env.user.ID, res.CheckIn.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("second delete error = %v, want NotFound", err)
	}
}

func TestGoalTransitions(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")
	ctx := context.Background()
	uid := env.user.ID

	if _, err := env.goals.Resume(ctx, uid, goal.ID); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("resume active: error = %v, want InvalidTransition", err)
	}
	paused, err := env.goals.Pause(ctx, uid, goal.ID)
	if err != nil || paused.Status != models.GoalStatusPaused {
		t.Fatalf("Pause() = %v, %v", paused, err)
	}
	if _, err := env.goals.Pause(ctx, uid, goal.ID); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("pause paused: error = %v, want InvalidTransition", err)
	}
	if _, err := env.submit(goal.ID, models.OutcomeCompleted, "2026-05-02"); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("submit while paused: error = %v, want InvalidState", err)
	}
	if _, err := env.submit(goal.ID, models.OutcomeDefer, "2026-05-02"); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("defer while paused: error = %v, want InvalidState", err)
	}

	resumed, err := env.goals.Resume(ctx, uid, goal.ID)
	if err != nil || resumed.Status != models.GoalStatusActive {
		t.Fatalf("Resume() = %v, %v", resumed, err)
	}
	cancelled, err := env.goals.Cancel(ctx, uid, goal.ID)
	if err != nil || cancelled.Status != models.GoalStatusCancelled {
		t.Fatalf("Cancel() = %v, %v", cancelled, err)
	}
	if _, err := env.goals.Pause(ctx, uid, goal.ID); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("pause cancelled: error = %v, want InvalidTransition", err)
	}
	if _, err := env.goals.Cancel(ctx, uid, goal.ID); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("cancel cancelled: error = %v, want InvalidTransition", err)
	}
}

func TestSubmitGuards(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")
	other := env.newUser(t)
	ctx := context.Background()
	today := "2026-05-02"

	_, err := env.checkIns.Submit(ctx, other.ID, goal.ID, models.SubmitCheckInRequest{Outcome: models.OutcomeCompleted, Date: &today})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("other user: error = %v, want Forbidden", err)
	}
	if _, err := env.submit(uuid.New(), models.OutcomeCompleted, today); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown goal: error = %v, want NotFound", err)
	}
	if _, err := env.submit(goal.ID, models.Outcome("maybe"), today); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("bad outcome: error = %v, want Validation", err)
	}
	if _, err := env.submit(goal.ID, models.OutcomeCompleted, "2026-05-03"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("future date: error = %v, want Validation", err)
	}
	if _, err := env.submit(goal.ID, models.OutcomeCompleted, "2026-04-30"); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("before start: error = %v, want InvalidState", err)
	}

	// Date defaults to today.
	res, err := env.checkIns.Submit(ctx, env.user.ID, goal.ID, models.SubmitCheckInRequest{Outcome: models.OutcomeCompleted})
	if err != nil {
		t.Fatal(err)
	}
	if res.CheckIn.Date != today {
		t.Errorf("Date = %s, want %s", res.CheckIn.Date, today)
	}
}

func TestDeferRecordsNothing(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")
	ctx := context.Background()

	res, err := env.checkIns.Submit(ctx, env.user.ID, goal.ID, models.SubmitCheckInRequest{Outcome: models.OutcomeDefer})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Deferred || res.CheckIn != nil {
		t.Errorf("defer result = %+v", res)
	}

	today, err := env.checkIns.Today(ctx, env.user.ID, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if today != nil {
		t.Errorf("defer created a check-in: %+v", today)
	}

	page, err := env.store.ListNotifications(ctx, env.user.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Notifications[0].Type != models.NotificationReminderScheduled {
		t.Errorf("notifications = %+v, want one reminder", page.Notifications)
	}

	// Deferring does not block a later report for the same day.
	if _, err := env.submit(goal.ID, models.OutcomeCompleted, "2026-05-02"); err != nil {
		t.Errorf("submit after defer: %v", err)
	}
	today, err = env.checkIns.Today(ctx, env.user.ID, goal.ID)
	if err != nil || today == nil || !today.Completed {
		t.Errorf("Today() = %+v, %v", today, err)
	}
}

func TestDeferOutsideGoalPeriod(t *testing.T) {
	env := setupTestEnv(t, "2026-05-04")
	goal := env.newGoal(t, 30, 30, "2026-05-03")
	ctx := context.Background()

	for _, date := range []string{"2026-05-01", "2026-05-02"} {
		_, err := env.submit(goal.ID, models.OutcomeDefer, date)
		if !apperr.Is(err, apperr.KindInvalidState) {
			t.Errorf("defer %s: error = %v, want InvalidState", date, err)
		}
	}

	page, err := env.store.ListNotifications(ctx, env.user.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 0 {
		t.Errorf("notifications = %+v, want none", page.Notifications)
	}
}

func TestBackdatedCheckInKeepsCountersConsistent(t *testing.T) {
	env := setupTestEnv(t, "2026-05-06")
	goal := env.newGoal(t, 0, 30, "2026-05-01")
	ctx := context.Background()

	for _, d := range []struct {
		date    string
		outcome models.Outcome
	}{
		{"2026-05-01", models.OutcomeCompleted},
		{"2026-05-03", models.OutcomeCompleted},
		{"2026-05-05", models.OutcomeCompleted},
		{"2026-05-02", models.OutcomeFailed}, // backdated, splits the run
		{"2026-05-06", models.OutcomeCompleted},
	} {
		if _, err := env.submit(goal.ID, d.outcome, d.date); err != nil {
			t.Fatalf("submit %s: %v", d.date, err)
		}
	}

	stats, err := env.goals.Stats(ctx, env.user.ID, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Drift {
		t.Errorf("drift: cached %+v recomputed %+v", stats.Cached, stats.Counters())
	}
	if stats.CurrentStreak != 3 || stats.LongestStreak != 3 {
		t.Errorf("streaks = %d/%d, want 3/3", stats.CurrentStreak, stats.LongestStreak)
	}
	if stats.MissedDays != 1 {
		t.Errorf("MissedDays = %d, want 1 (May 4)", stats.MissedDays)
	}
	if stats.LastCheckIn == nil || *stats.LastCheckIn != "2026-05-06" {
		t.Errorf("LastCheckIn = %v", stats.LastCheckIn)
	}

	env.assertStoredStreaks(t, goal.ID, map[string]int{
		"2026-05-01": 1,
		"2026-05-02": 0,
		"2026-05-03": 1,
		"2026-05-05": 2,
		"2026-05-06": 3,
	})
}

func TestUpdateMidHistoryRestreaksLaterCheckIns(t *testing.T) {
	env := setupTestEnv(t, "2026-05-04")
	goal := env.newGoal(t, 0, 30, "2026-05-01")
	ctx := context.Background()

	var middle uuid.UUID
	for _, date := range []string{"2026-05-01", "2026-05-02", "2026-05-03"} {
		res, err := env.submit(goal.ID, models.OutcomeCompleted, date)
		if err != nil {
			t.Fatalf("submit %s: %v", date, err)
		}
		if date == "2026-05-02" {
			middle = res.CheckIn.ID
		}
	}
	env.assertStoredStreaks(t, goal.ID, map[string]int{"2026-05-01": 1, "2026-05-02": 2, "2026-05-03": 3})

	failed := false
	if _, err := env.checkIns.Update(ctx, env.user.ID, middle, models.UpdateCheckInRequest{Completed: &failed}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	env.assertStoredStreaks(t, goal.ID, map[string]int{"2026-05-01": 1, "2026-05-02": 0, "2026-05-03": 1})

	stats, err := env.goals.Stats(ctx, env.user.ID, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Drift || stats.CurrentStreak != 1 || stats.LongestStreak != 1 {
		t.Errorf("stats = %+v, want streaks 1/1 and no drift", stats)
	}

	completed := true
	if _, err := env.checkIns.Update(ctx, env.user.ID, middle, models.UpdateCheckInRequest{Completed: &completed}); err != nil {
		t.Fatalf("Update() back to completed error = %v", err)
	}
	env.assertStoredStreaks(t, goal.ID, map[string]int{"2026-05-01": 1, "2026-05-02": 2, "2026-05-03": 3})
	if g := env.reload(t, goal.ID); g.CurrentStreak != 3 || g.LongestStreak != 3 {
		t.Errorf("goal streaks = %d/%d, want 3/3", g.CurrentStreak, g.LongestStreak)
	}
}

// assertStoredStreaks checks the streak saved on each check-in and that the
// newest one matches the full recompute.
func (e *testEnv) assertStoredStreaks(t *testing.T, goalID uuid.UUID, want map[string]int) {
	t.Helper()
	ctx := context.Background()
	history, err := e.store.ListCheckIns(ctx, goalID, repository.DateRange{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != len(want) {
		t.Fatalf("check-ins = %d, want %d", len(history), len(want))
	}
	for _, c := range history {
		if c.StreakCount != want[c.Date] {
			t.Errorf("stored streak on %s = %d, want %d", c.Date, c.StreakCount, want[c.Date])
		}
	}

	stats, err := e.goals.Stats(ctx, e.user.ID, goalID)
	if err != nil {
		t.Fatal(err)
	}
	if last := history[len(history)-1]; last.StreakCount != stats.CurrentStreak {
		t.Errorf("stored streak on last check-in = %d, recompute current = %d", last.StreakCount, stats.CurrentStreak)
	}
}

func TestStakeLifecycle(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	goal := env.newGoal(t, 30, 30, "2026-05-01")
	ctx := context.Background()
	uid := env.user.ID

	list, err := env.payments.ListForGoal(ctx, uid, goal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Type != models.PaymentTypeStakeAuthorization || list[0].Status != models.PaymentStatusAuthorized {
		t.Fatalf("payments after create = %+v, want one authorized stake", list)
	}

	again, err := env.payments.AuthorizeStake(ctx, uid, goal.ID, nil)
	if err != nil || again.ID != list[0].ID {
		t.Errorf("AuthorizeStake() = %v, %v; want the existing authorization", again, err)
	}

	if _, err := env.payments.RefundStake(ctx, uid, goal.ID); !apperr.Is(err, apperr.KindNothingToRefund) {
		t.Errorf("refund before capture: error = %v, want NothingToRefund", err)
	}

	if _, err := env.payments.CaptureStake(ctx, uid, goal.ID); err != nil {
		t.Fatalf("CaptureStake() error = %v", err)
	}
	refund, err := env.payments.RefundStake(ctx, uid, goal.ID)
	if err != nil {
		t.Fatalf("RefundStake() error = %v", err)
	}
	if !refund.Amount.Equal(decimal.NewFromInt(-30)) || refund.Status != models.PaymentStatusCompleted {
		t.Errorf("refund = %+v", refund)
	}

	other := env.newUser(t)
	if _, err := env.payments.RefundStake(ctx, other.ID, goal.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("refund by another user: error = %v, want Forbidden", err)
	}

	all, err := env.payments.List(ctx, uid, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("%d payments, want stake and refund", len(all))
	}
}

func TestLoginChecksPassword(t *testing.T) {
	env := setupTestEnv(t, "2026-05-02")
	ctx := context.Background()

	if _, err := env.users.Login(ctx, models.LoginRequest{Email: env.user.Email, Password: "hunter22"}); err != nil {
		t.Errorf("Login() error = %v", err)
	}
	if _, err := env.users.Login(ctx, models.LoginRequest{Email: env.user.Email, Password: "wrong"}); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Errorf("wrong password: error = %v, want Unauthorized", err)
	}
	if _, err := env.users.Register(ctx, models.RegisterRequest{Email: env.user.Email, Password: "whatever"}); !apperr.Is(err, apperr.KindInvalidState) {
		t.Errorf("duplicate email: error = %v, want InvalidState", err)
	}
}
