package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dignitybank/dignity-be/internal/services"
)

// Auditor periodically re-checks the ledger invariants that must hold in
// every committed state: no account balance is negative and every recorded
// transfer moved a positive amount. Violations mean a bug in the write
// path, so they are logged loudly and recorded as error events.
type Auditor struct {
	db       *sql.DB
	eventSvc services.EventServiceProvider
	schedule cron.Schedule
	done     chan bool
}

// NewAuditor creates an auditor driven by a standard cron expression.
func NewAuditor(db *sql.DB, eventSvc services.EventServiceProvider, spec string) (*Auditor, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", spec, err)
	}
	return &Auditor{
		db:       db,
		eventSvc: eventSvc,
		schedule: schedule,
		done:     make(chan bool),
	}, nil
}

// Run starts the audit loop.
func (a *Auditor) Run() {
	log.Info().Msg("Starting background ledger auditor...")

	// Run once immediately on start
	a.audit()

	timer := time.NewTimer(time.Until(a.schedule.Next(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-a.done:
			log.Info().Msg("Stopping background ledger auditor.")
			return
		case <-timer.C:
			a.audit()
			timer.Reset(time.Until(a.schedule.Next(time.Now())))
		}
	}
}

// Stop halts the audit loop.
func (a *Auditor) Stop() {
	a.done <- true
}

func (a *Auditor) audit() {
	ctx := context.Background()

	var accounts int
	var total float64
	row := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*), TOTAL(CAST(balance AS REAL)) FROM accounts")
	if err := row.Scan(&accounts, &total); err != nil {
		log.Error().Err(err).Msg("Auditor: Failed to sum balances")
		return
	}

	var negatives int
	row = a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE CAST(balance AS REAL) < 0")
	if err := row.Scan(&negatives); err != nil {
		log.Error().Err(err).Msg("Auditor: Failed to count negative balances")
		return
	}

	var badTransfers int
	row = a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE CAST(amount AS REAL) <= 0")
	if err := row.Scan(&badTransfers); err != nil {
		log.Error().Err(err).Msg("Auditor: Failed to check transfer amounts")
		return
	}

	entry := log.Info().
		Int("accounts", accounts).
		Float64("total_balance", total).
		Int("negative_balances", negatives).
		Int("bad_transfers", badTransfers)
	if vm, err := mem.VirtualMemory(); err == nil {
		entry = entry.Float64("mem_used_percent", vm.UsedPercent)
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		entry = entry.Float64("cpu_percent", pcts[0])
	}
	entry.Msg("Auditor: Ledger audit complete")

	if negatives > 0 || badTransfers > 0 {
		msg := fmt.Sprintf("Ledger audit found %d negative balance(s) and %d non-positive transfer record(s).", negatives, badTransfers)
		log.Error().Msg("Auditor: " + msg)
		if err := a.eventSvc.Record(ctx, "ledger.audit.violation", "error", msg, nil); err != nil {
			log.Error().Err(err).Msg("Auditor: Failed to record audit violation event")
		}
	}
}
