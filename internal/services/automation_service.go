package services

import (
	"context"
	"sync"
	"time"

	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"

	"github.com/rs/zerolog"
)

// AutomationService moves projects along by their dates and hands out
// unassigned leads on a fixed interval.
type AutomationService struct {
	Repos           *repositories.Repositories
	Leads           *LeadService
	Notifier        Notifier
	interval        time.Duration
	autoAssignLeads bool
	now             timeutil.Clock
	log             zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewAutomationService(repos *repositories.Repositories, leads *LeadService, n Notifier,
	interval time.Duration, autoAssignLeads bool, clock timeutil.Clock) *AutomationService {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &AutomationService{
		Repos:           repos,
		Leads:           leads,
		Notifier:        notifierOrNop(n),
		interval:        interval,
		autoAssignLeads: autoAssignLeads,
		now:             clock,
		log:             logging.For("automation"),
		stopChan:        make(chan struct{}),
	}
}

// AutoUpdateProjectStatus starts pending projects whose start date has come
// and completes running ones whose end date has passed. It returns the
// projects it changed.
func (s *AutomationService) AutoUpdateProjectStatus(ctx context.Context) ([]*models.Project, error) {
	today := timeutil.Date(s.now())

	var changed []*models.Project
	err := s.Repos.Store.Update(ctx, func(tx *store.Tx) error {
		changed = changed[:0]
		projects, err := s.Repos.Projects.ListTx(tx, "")
		if err != nil {
			return err
		}
		for _, p := range projects {
			status := p.Status
			if status == models.ProjectPending && p.StartDate != "" && today >= p.StartDate {
				status = models.ProjectInProgress
			}
			if status == models.ProjectInProgress && p.EndDate != "" && today >= p.EndDate {
				status = models.ProjectCompleted
			}
			if status == p.Status {
				continue
			}
			updated, err := s.Repos.Projects.UpdateTx(tx, p.ID, 0, func(p *models.Project) error {
				applyStatus(p, status)
				return nil
			})
			if err != nil {
				return err
			}
			changed = append(changed, updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range changed {
		s.Notifier.ProjectUpdate(p.ID, "status_changed", map[string]interface{}{"status": p.Status, "automatic": true})
	}
	return changed, nil
}

// RunOnce performs one automation pass.
func (s *AutomationService) RunOnce(ctx context.Context) {
	projects, err := s.AutoUpdateProjectStatus(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("project status automation failed")
	} else if len(projects) > 0 {
		s.log.Info().Int("count", len(projects)).Msg("project statuses updated")
	}

	if !s.autoAssignLeads || s.Leads == nil {
		return
	}
	if _, err := s.Leads.AutoAssign(ctx); err != nil {
		s.log.Error().Err(err).Msg("lead auto-assignment failed")
	}
}

func (s *AutomationService) Start() {
	s.log.Info().Dur("interval", s.interval).Msg("starting automation")
	s.RunOnce(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunOnce(context.Background())
			case <-s.stopChan:
				s.log.Info().Msg("stopping automation")
				return
			}
		}
	}()
}

func (s *AutomationService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
