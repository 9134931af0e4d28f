package maintenance

import (
	"database/sql"
	"testing"
	"time"
)

func TestConfigDueTime(t *testing.T) {
	today := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	cfg := PlanConfig{
		TriggerType:  TriggerTime,
		IntervalDays: sql.NullInt64{Int64: 30, Valid: true},
	}
	if !configDue(cfg, 0, today) {
		t.Error("never-generated config should be due")
	}

	cfg.LastGeneratedOn = sql.NullTime{Time: today.AddDate(0, 0, -30), Valid: true}
	if !configDue(cfg, 0, today) {
		t.Error("config at exactly interval_days should be due")
	}

	cfg.LastGeneratedOn = sql.NullTime{Time: today.AddDate(0, 0, -29), Valid: true}
	if configDue(cfg, 0, today) {
		t.Error("config inside interval should not be due")
	}

	cfg.IntervalDays = sql.NullInt64{}
	if configDue(cfg, 0, today) {
		t.Error("time trigger without interval_days should never fire")
	}
}

func TestConfigDueUsageHours(t *testing.T) {
	today := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	cfg := PlanConfig{
		TriggerType:         TriggerUsageHours,
		UsageHoursThreshold: sql.NullInt64{Int64: 100, Valid: true},
		LastUsageHours:      250,
	}
	if configDue(cfg, 300, today) {
		t.Error("50 hours since last fire should not be due at threshold 100")
	}
	if !configDue(cfg, 350, today) {
		t.Error("100 hours since last fire should be due")
	}
	if !configDue(cfg, 420, today) {
		t.Error("over threshold should be due")
	}
	// カウンタが基準値を下回っても符号なし減算で誤発火しない
	if configDue(cfg, 200, today) {
		t.Error("counter below stamped baseline should not be due")
	}
	if configDue(cfg, 0, today) {
		t.Error("reset counter should not be due")
	}
}

func TestConfigDueUnknownTrigger(t *testing.T) {
	cfg := PlanConfig{TriggerType: "lunar_phase"}
	if configDue(cfg, 0, time.Now()) {
		t.Error("unknown trigger type should never fire")
	}
}

func TestIsOpen(t *testing.T) {
	for status, want := range map[string]bool{
		OrderPending:    true,
		OrderInProgress: true,
		OrderDone:       false,
		OrderCancelled:  false,
	} {
		if got := isOpen(status); got != want {
			t.Errorf("isOpen(%q) = %v, want %v", status, got, want)
		}
	}
}
