package maintenance

import "time"

// configDue は計画設定が発火条件を満たしたかを判定する。
// time型: 前回発生日から interval_days 経過（未発生なら即時）。
// usage_hours型: 前回発生時点からの稼働時間差分が閾値以上。
func configDue(cfg PlanConfig, currentUsageHours uint, today time.Time) bool {
	switch cfg.TriggerType {
	case TriggerTime:
		if !cfg.IntervalDays.Valid {
			return false
		}
		if !cfg.LastGeneratedOn.Valid {
			return true
		}
		next := cfg.LastGeneratedOn.Time.AddDate(0, 0, int(cfg.IntervalDays.Int64))
		return !today.Before(next)
	case TriggerUsageHours:
		if !cfg.UsageHoursThreshold.Valid {
			return false
		}
		// カウンタ交換等で基準値を下回った場合は差分ゼロ扱い
		if currentUsageHours < cfg.LastUsageHours {
			return false
		}
		return currentUsageHours-cfg.LastUsageHours >= uint(cfg.UsageHoursThreshold.Int64)
	default:
		return false
	}
}
