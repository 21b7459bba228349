package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"dot-wallet/pkg/logger"
	"dot-wallet/pkg/monitor"
)

// ConstantsRefresher 重新加载链上 metadata 与常量 (substrate.Client 实现)
type ConstantsRefresher interface {
	ChainID() string
	Refresh(ctx context.Context) error
}

type CronService struct {
	cron    *cron.Cron
	spec    string
	chains  []ConstantsRefresher
	timeout time.Duration
}

func NewCronService(spec string, chains ...ConstantsRefresher) *CronService {
	// 上一轮没跑完就跳过本轮
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	return &CronService{
		cron:    c,
		spec:    spec,
		chains:  chains,
		timeout: time.Minute,
	}
}

func (s *CronService) Start() error {
	// 注册任务
	if _, err := s.cron.AddFunc(s.spec, s.RefreshConstants); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("Cron Service started", zap.String("constants_refresh", s.spec))
	return nil
}

func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Cron Service stopped")
}

// RefreshConstants runtime 升级后 MaxNominations、spec version 可能变化
func (s *CronService) RefreshConstants() {
	for _, ch := range s.chains {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := ch.Refresh(ctx); err != nil {
			monitor.ConstantsRefreshFailed(ch.ChainID())
			logger.Warn("刷新链上常量失败", zap.String("chain", ch.ChainID()), zap.Error(err))
		}
		cancel()
	}
}
