package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/contract-admin/internal/repository"
	"github.com/jwalitptl/contract-admin/internal/service/notification"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	pkgworker "github.com/jwalitptl/contract-admin/pkg/worker"
)

// expiryMilestones are the days-before-expiry on which a warning goes out.
var expiryMilestones = map[int]bool{30: true, 14: true, 7: true, 3: true, 1: true, 0: true}

// ContractEvents is the part of the dispatcher the scanner drives.
type ContractEvents interface {
	ContractExpiring(ctx context.Context, contractID int64, daysUntilExpiry int) notification.DispatchResult
	PaymentOverdue(ctx context.Context, contractID int64, daysOverdue int, amount float64) notification.DispatchResult
}

type ScanResult struct {
	Expiring int
	Overdue  int
}

// ContractScanner periodically raises expiry warnings and overdue payment
// alerts. Overdue alerts rely on the dispatcher's dedup rule; expiry
// warnings fire once per milestone day, remembered for a day in memory.
type ContractScanner struct {
	contracts   repository.ContractRepository
	events      ContractEvents
	horizonDays int
	interval    time.Duration
	fired       *cache.Cache
	logger      *logger.Logger
	now         func() time.Time
}

func NewContractScanner(contracts repository.ContractRepository, events ContractEvents, horizonDays int, interval time.Duration, log *logger.Logger) *ContractScanner {
	return &ContractScanner{
		contracts:   contracts,
		events:      events,
		horizonDays: horizonDays,
		interval:    interval,
		fired:       cache.New(25*time.Hour, time.Hour),
		logger:      log.With("contract_scanner"),
		now:         time.Now,
	}
}

func (s *ContractScanner) Start(ctx context.Context) {
	pkgworker.NewPeriodic("contract_scanner", s.interval, func(ctx context.Context) error {
		_, err := s.Scan(ctx)
		return err
	}, s.logger).Start(ctx, true)
}

func (s *ContractScanner) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult
	now := s.now().UTC()

	expiring, err := s.contracts.ListExpiring(ctx, now, now.AddDate(0, 0, s.horizonDays+1))
	if err != nil {
		return result, fmt.Errorf("failed to list expiring contracts: %w", err)
	}
	for _, c := range expiring {
		if c.ExpiresAt == nil {
			continue
		}
		days := int(math.Floor(c.ExpiresAt.Sub(now).Hours() / 24))
		if days > s.horizonDays || !expiryMilestones[days] {
			continue
		}
		key := fmt.Sprintf("%d:%d", c.ID, days)
		if _, seen := s.fired.Get(key); seen {
			continue
		}
		s.fired.SetDefault(key, struct{}{})
		s.events.ContractExpiring(ctx, c.ID, days)
		result.Expiring++
	}

	overdue, err := s.contracts.ListOverduePayments(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to list overdue payments: %w", err)
	}
	for _, p := range overdue {
		days := p.DaysOverdue(now)
		if days < 1 {
			continue
		}
		s.events.PaymentOverdue(ctx, p.ContractID, days, p.Amount)
		result.Overdue++
	}

	s.logger.Info("Contract scan finished", "expiring", result.Expiring, "overdue", result.Overdue)
	return result, nil
}
