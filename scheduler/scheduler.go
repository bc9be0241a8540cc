package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/config"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/queue"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/sanitize"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/storage"
)

const commandPollInterval = 2 * time.Second

// Scheduler drives the queue: a cron expression or fixed interval triggers
// the single worker, and a small poll loop picks up commands from the inbox.
type Scheduler struct {
	cfg     *config.Config
	manager *queue.Manager
	store   *storage.SQLiteStore
	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}
}

func New(cfg *config.Config, manager *queue.Manager, store *storage.SQLiteStore) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		store:   store,
		cron:    cron.New(),
		stopCh:  make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.store != nil {
		go s.pollCommands(ctx)
	}

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() { s.runDue(ctx) })
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runDue(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("no schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// runDue enqueues the saved searches and fires the worker. Jobs requeued by a
// publish failure sit at the queue front and retry here first. The trigger is
// a no-op while a job is still executing.
func (s *Scheduler) runDue(ctx context.Context) {
	s.enqueueSavedSearches()

	if err := s.manager.Trigger(ctx); err != nil {
		log.Printf("scheduled trigger error: %v", err)
	}
}

func (s *Scheduler) enqueueSavedSearches() {
	for _, saved := range s.cfg.Searches {
		req, err := queue.NewRequest(saved.Term, saved.PostalCode, models.SearchKind(saved.Kind), sourceNames(saved.Sources))
		if err != nil {
			log.Printf("saved search %q rejected: %v", saved.Term, err)
			continue
		}
		if err := s.manager.Enqueue(req); err != nil {
			log.Printf("enqueue saved search %q: %v", saved.Term, err)
		}
	}
}

// TriggerNow fires the worker outside the schedule.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.manager.Trigger(ctx)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdEnqueueSearch:
		params, err := s.store.ParseCommandParams(cmd)
		if err != nil {
			return err
		}
		req, err := queue.NewRequest(params.Term, params.PostalCode, models.SearchKind(params.Kind), sourceNames(params.Sources))
		if err != nil {
			if errors.Is(err, sanitize.ErrInvalidInput) {
				log.Printf("command rejected by sanitizer: %v", err)
				return nil // the command is consumed, not retried
			}
			return err
		}
		if err := s.manager.Enqueue(req); err != nil {
			return err
		}
		return s.manager.Trigger(ctx)
	case models.CmdTriggerNow:
		return s.manager.Trigger(ctx)
	case models.CmdPause:
		s.manager.Pause()
		return nil
	case models.CmdResume:
		s.manager.Resume()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

func sourceNames(names []string) []models.SourceName {
	sources := make([]models.SourceName, 0, len(names))
	for _, n := range names {
		sources = append(sources, models.SourceName(n))
	}
	return sources
}
