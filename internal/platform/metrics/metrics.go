package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var opsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sims_engine_ops_total",
		Help: "Transition engine operations by name and result code.",
	},
	[]string{"op", "result"},
)

type coded interface{ ErrorCode() string }

// ObserveOp は各オペレーション終了時に1回だけ呼ぶ。
func ObserveOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		var c coded
		if errors.As(err, &c) {
			result = c.ErrorCode()
		}
	}
	opsTotal.WithLabelValues(op, result).Inc()
}
