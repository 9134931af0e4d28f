package loans

import (
	"fmt"

	"SIMS-backend/internal/inventory/engine"
)

// settled: 貸出数が返却と紛失で使い切られた明細
func settled(l Line) bool {
	return l.Returned+l.Lost >= l.Lent
}

// recomputeStatus は明細集合から貸出全体のステータスを導出する。
// 全明細精算済み → completed、一部でも返却があれば partially_returned。
// 紛失のみの精算はステータスを動かさない。
func recomputeStatus(lines []Line) string {
	if len(lines) == 0 {
		return StatusPending
	}
	allSettled := true
	anyReturn := false
	for _, l := range lines {
		if !settled(l) {
			allSettled = false
		}
		if l.Returned > 0 {
			anyReturn = true
		}
	}
	switch {
	case allSettled:
		return StatusCompleted
	case anyReturn:
		return StatusPartiallyReturned
	default:
		return StatusPending
	}
}

// validateSettlement は1明細への精算入力を検証する。
// 精算済み明細は呼び出し側で冪等スキップするため、ここには来ない前提。
func validateSettlement(l Line, returnQty, lossQty uint) error {
	if returnQty == 0 && lossQty == 0 {
		return engine.ErrInvalid(fmt.Sprintf("line %d: settlement requires a return or loss quantity", l.LineID))
	}
	outstanding := l.Lent - l.Returned - l.Lost
	if returnQty+lossQty > outstanding {
		return engine.ErrInvalid(fmt.Sprintf(
			"line %d: settlement %d exceeds outstanding %d", l.LineID, returnQty+lossQty, outstanding))
	}
	if l.AssetID.Valid && returnQty+lossQty != 1 {
		return engine.ErrInvalid(fmt.Sprintf("line %d: asset lines settle exactly one unit", l.LineID))
	}
	return nil
}
