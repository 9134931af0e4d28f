package engine

// 状態名（item_states.name と一致させる。欠落は設定エラー）
const (
	StateAvailable     = "available"
	StateAssigned      = "assigned"
	StateOnLoan        = "on_loan"
	StateInRepair      = "in_repair"
	StatePendingReview = "pending_review"
	StateAnnulled      = "annulled"
	StateDisposed      = "disposed"
	StateLost          = "lost"
)

type Op string

const (
	OpReceive    Op = "receive"
	OpAnnul      Op = "annul"
	OpDispose    Op = "dispose"
	OpReportLost Op = "report_lost"
	OpAdjust     Op = "adjust"
	OpConsume    Op = "consume"
	OpTransfer   Op = "transfer"
	OpLend       Op = "lend"
	OpReturn     Op = "return"
	OpClaim      Op = "maint_claim"
	OpRelease    Op = "maint_release"
	OpFlagReview Op = "maint_flag_review"
)

// 許可される遷移元状態の一覧表。ここが唯一の正であり、
// 各オペレーションはこの表以外で状態判定をしない。
var allowedSources = map[Op][]string{
	OpAnnul:      {StateAvailable},
	OpDispose:    {StateAvailable, StatePendingReview, StateInRepair},
	OpReportLost: {StateAvailable, StatePendingReview, StateInRepair, StateOnLoan},
	OpAdjust:     {StateAvailable},
	OpConsume:    {StateAvailable, StateOnLoan},
	OpTransfer:   {StateAvailable, StateAssigned},
	OpLend:       {StateAvailable},
	OpReturn:     {StateOnLoan},
	OpClaim:      {StateAvailable, StatePendingReview},
	OpRelease:    {StateInRepair},
	OpFlagReview: {StateInRepair},
}

func CanApply(op Op, current string) bool {
	for _, s := range allowedSources[op] {
		if s == current {
			return true
		}
	}
	return false
}

// 終端状態。二度と遷移元にならない。
func IsTerminal(state string) bool {
	switch state {
	case StateAnnulled, StateDisposed, StateLost:
		return true
	}
	return false
}
