package maintenance

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler は定期保守計画の発火チェックを回す。
// cron仕様は設定ファイル由来（既定は毎時0分）。
type Scheduler struct {
	cron *cron.Cron
	svc  *Service
}

func NewScheduler(spec string, svc *Service) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, svc: svc}
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	created, err := s.svc.GenerateDueOrders(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("[ERROR] maintenance scheduler: %v", err)
		return
	}
	if created > 0 {
		log.Printf("[INFO] maintenance scheduler created %d orders", created)
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop は実行中ジョブの完了を待つ。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
