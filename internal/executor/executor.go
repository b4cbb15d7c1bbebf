// Package executor runs extraction for one or many rules across one or many
// accounts. Rules sharing an account share one connection and run serially
// on it; distinct accounts run in parallel. One rule's failure never aborts
// sibling rules.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/attachflow/attachflow/internal/config"
	"github.com/attachflow/attachflow/internal/email"
	"github.com/attachflow/attachflow/internal/ledger"
	"github.com/attachflow/attachflow/internal/models"
	"github.com/attachflow/attachflow/internal/pipeline"
	"github.com/attachflow/attachflow/internal/report"
	"github.com/attachflow/attachflow/internal/rules"
	"github.com/attachflow/attachflow/internal/types"
	"github.com/attachflow/attachflow/internal/utility/u_io"
)

// DialFunc builds a client session for an account. Replaced in tests.
type DialFunc func(account *types.MailAccount, logger *slog.Logger) (email.Client, error)

// Options tune one batch execution.
type Options struct {
	// Force reprocesses messages already in the ledger.
	Force bool
}

// Executor coordinates rule executions.
type Executor struct {
	logger *slog.Logger
	store  *config.Store
	ledger ledger.Ledger
	sink   report.Sink // may be nil
	dial   DialFunc
}

// New creates an executor. sink may be nil when reports are only returned to
// the caller.
func New(store *config.Store, led ledger.Ledger, sink report.Sink, logger *slog.Logger) *Executor {
	return &Executor{
		logger: logger,
		store:  store,
		ledger: led,
		sink:   sink,
		dial:   email.NewClient,
	}
}

// SetDial overrides how account sessions are established.
func (e *Executor) SetDial(dial DialFunc) {
	e.dial = dial
}

// RunRule executes a single rule by name.
func (e *Executor) RunRule(ctx context.Context, name string, opts Options) (*models.RunReport, error) {
	rule, err := e.store.Rule(name)
	if err != nil {
		return nil, err
	}
	account, err := e.store.Account(rule.Account)
	if err != nil {
		return nil, err
	}

	reports := e.runAccount(ctx, account, []*types.Rule{rule}, opts)
	return reports[0], nil
}

// RunAll executes the named rules, or every enabled rule when names is
// empty. It always returns one report per rule; failures are described in
// the reports, never raised.
func (e *Executor) RunAll(ctx context.Context, names []string, opts Options) []*models.RunReport {
	var all []*models.RunReport

	// Resolve rule names and group by account.
	groups := make(map[string][]*types.Rule)
	var accounts []*types.MailAccount
	seen := make(map[string]*types.MailAccount)

	resolved := e.resolve(names, &all)
	for _, rule := range resolved {
		account, err := e.store.Account(rule.Account)
		if err != nil {
			all = append(all, failedReport(rule.Name, rule.Account, err))
			continue
		}
		if _, ok := seen[account.Name]; !ok {
			seen[account.Name] = account
			accounts = append(accounts, account)
		}
		groups[account.Name] = append(groups[account.Name], rule)
	}

	maxConcurrent := e.store.Settings().MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, account := range accounts {
		account := account
		batch := groups[account.Name]

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			reports := e.runAccount(ctx, account, batch, opts)

			mu.Lock()
			all = append(all, reports...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(all, func(i, j int) bool { return all[i].RuleName < all[j].RuleName })
	return all
}

// resolve maps rule names to rule configs; unknown names produce failed
// reports. Empty names selects every enabled rule.
func (e *Executor) resolve(names []string, all *[]*models.RunReport) []*types.Rule {
	if len(names) == 0 {
		return e.store.EnabledRules()
	}

	var resolved []*types.Rule
	for _, name := range names {
		rule, err := e.store.Rule(name)
		if err != nil {
			*all = append(*all, failedReport(name, "", err))
			continue
		}
		resolved = append(resolved, rule)
	}
	return resolved
}

// runAccount executes a batch of rules that share one account. Rules that
// fail validation are reported without any network I/O; the rest share one
// connection, re-established once if it drops mid-batch.
func (e *Executor) runAccount(ctx context.Context, account *types.MailAccount, batch []*types.Rule, opts Options) []*models.RunReport {
	logger := e.logger.With("account", account.Name)
	reports := make([]*models.RunReport, 0, len(batch))

	// Validation stage: compile patterns and templates and probe the
	// destination folder before touching the network.
	var compiled []*rules.CompiledRule
	for _, rule := range batch {
		cr, err := rules.Compile(rule, account)
		if err != nil {
			logger.Error("rule rejected", "rule", rule.Name, "error", err)
			reports = append(reports, failedReport(rule.Name, account.Name, err))
			continue
		}
		if err := u_io.EnsureDir(rule.DestFolder); err != nil {
			cfgErr := &rules.ConfigError{Rule: rule.Name, Err: fmt.Errorf("destination folder: %w", err)}
			logger.Error("rule rejected", "rule", rule.Name, "error", cfgErr)
			reports = append(reports, failedReport(rule.Name, account.Name, cfgErr))
			continue
		}
		compiled = append(compiled, cr)
	}

	if len(compiled) == 0 {
		e.persist(reports)
		return reports
	}

	client, err := e.dial(account, logger)
	if err != nil {
		for _, cr := range compiled {
			reports = append(reports, failedReport(cr.Rule.Name, account.Name, err))
		}
		e.persist(reports)
		return reports
	}

	if err := client.Connect(ctx); err != nil {
		logger.Error("connection failed", "error", err)
		for _, cr := range compiled {
			reports = append(reports, failedReport(cr.Rule.Name, account.Name, err))
		}
		e.persist(reports)
		return reports
	}
	// client is nil after a failed reconnect below.
	defer func() {
		if client != nil {
			client.Close()
		}
	}()

	pipe := pipeline.New(logger, e.ledger)
	pipeOpts := pipeline.Options{
		Force:       opts.Force,
		Attachments: e.store.Settings().Attachments,
	}

	for i, cr := range compiled {
		rep, err := pipe.Run(ctx, cr, client, pipeOpts)
		reports = append(reports, rep)
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			for _, rest := range compiled[i+1:] {
				reports = append(reports, failedReport(rest.Rule.Name, account.Name, ctx.Err()))
			}
			break
		}

		// The shared connection failed; try one fresh session for the
		// remaining rules so a transient drop does not poison the batch.
		logger.Warn("reconnecting after connection failure", "failed_rule", cr.Rule.Name)
		client.Close()
		client, err = e.dial(account, logger)
		if err == nil {
			err = client.Connect(ctx)
		}
		if err != nil {
			logger.Error("reconnect failed", "error", err)
			for _, rest := range compiled[i+1:] {
				reports = append(reports, failedReport(rest.Rule.Name, account.Name, err))
			}
			break
		}
	}

	e.persist(reports)
	return reports
}

func (e *Executor) persist(reports []*models.RunReport) {
	if e.sink == nil {
		return
	}
	for _, rep := range reports {
		if err := e.sink.Store(rep); err != nil {
			e.logger.Error("failed to store run report", "rule", rep.RuleName, "run_id", rep.ID, "error", err)
		}
	}
}

// failedReport builds the report for a rule that never got to run.
func failedReport(ruleName, accountName string, err error) *models.RunReport {
	rep := models.NewRunReport(ruleName, accountName)
	rep.AddError(err.Error())
	return rep.Finish()
}
