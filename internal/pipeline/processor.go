package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/duplicates"
	infra "github.com/dvloznov/expense-assistant/internal/infra/bigquery"
	"github.com/dvloznov/expense-assistant/internal/infra/postgres"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/dvloznov/expense-assistant/internal/rules"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Default collaborator timeouts.
const (
	DefaultStoreTimeout = 10 * time.Second
	DefaultModelTimeout = 60 * time.Second
)

// Processor turns inbound messages into persisted, posted transactions.
// One message is processed sequentially; a Processor may serve several
// messages concurrently.
type Processor struct {
	store   Store
	parser  Parser
	ledger  Poster
	cache   ParseCache
	auditor Auditor

	settings   Settings
	engine     *rules.Engine
	classifier *duplicates.Classifier
	now        func() time.Time
}

// NewProcessor wires a Processor. log receives rule configuration warnings.
func NewProcessor(deps Deps, settings Settings, log zerolog.Logger) *Processor {
	if settings.StoreTimeout <= 0 {
		settings.StoreTimeout = DefaultStoreTimeout
	}
	if settings.ModelTimeout <= 0 {
		settings.ModelTimeout = DefaultModelTimeout
	}
	auditor := deps.Auditor
	if auditor == nil {
		auditor = infra.NopAuditor{}
	}
	return &Processor{
		store:      deps.Store,
		parser:     deps.Parser,
		ledger:     deps.Ledger,
		cache:      deps.Cache,
		auditor:    auditor,
		settings:   settings,
		engine:     rules.NewEngine(log),
		classifier: duplicates.NewClassifier(deps.Store),
		now:        time.Now,
	}
}

// ProcessPipeline returns the full ingestion pipeline.
func (p *Processor) ProcessPipeline() *Pipeline {
	return NewPipeline(
		&CachedParseStep{p},
		&CheckUsageStep{p},
		&LoadContextStep{p},
		&DetectAccountStep{p},
		&ParseStep{p},
		&SkipStep{p},
		&NormalizeDateStep{p},
		&ResolveAccountStep{p: p, Required: true},
		&ResolveCategoryStep{p},
		&BuildCandidateStep{p},
		&ClassifyDuplicatesStep{p},
		&ExpandTransferStep{p},
		&ApplyRulesStep{p},
		&ValidateEntriesStep{p},
		&PersistStep{p},
		&CountTransactionsStep{p},
	)
}

// PreviewPipeline parses and resolves without writing transactions.
func (p *Processor) PreviewPipeline() *Pipeline {
	return NewPipeline(
		&CachedParseStep{p},
		&CheckUsageStep{p},
		&LoadContextStep{p},
		&DetectAccountStep{p},
		&ParseStep{p},
		&SkipStep{p},
		&NormalizeDateStep{p},
		&ResolveAccountStep{p: p, Required: false},
		&ResolveCategoryStep{p},
	)
}

// Process runs one message through the full pipeline. Fatal outcomes are
// returned as a *Failure wrapped by the pipeline.
func (p *Processor) Process(ctx context.Context, msg Message) (*Result, error) {
	ctx, state, err := p.begin(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := p.ProcessPipeline().Execute(ctx, state); err != nil {
		p.logFailure(ctx, err)
		return nil, err
	}

	res := &Result{MessageID: state.Message.ID}
	if state.Skipped != nil {
		res.Status = StatusSkipped
		res.Skipped = state.Skipped
		res.Reason = state.Skipped.Reason
		return res, nil
	}
	res.Status = StatusSuccess
	res.Transactions = state.Persisted
	res.Transfer = state.Transfer
	return res, nil
}

// Preview parses a message and resolves its account and category without
// persisting a transaction. Non-transactions are still recorded as skipped.
func (p *Processor) Preview(ctx context.Context, msg Message) (*Preview, error) {
	ctx, state, err := p.begin(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := p.PreviewPipeline().Execute(ctx, state); err != nil {
		p.logFailure(ctx, err)
		return nil, err
	}

	out := &Preview{Parsed: state.Parsed, Usage: state.Usage}
	if state.Skipped != nil {
		out.Status = StatusSkipped
		out.Reason = state.Skipped.Reason
		return out, nil
	}
	out.Status = StatusParsed
	if state.Account != nil {
		out.Resolved.AccountID = state.Account.ID
	}
	if state.Category != nil {
		out.Resolved.CategoryID = state.Category.ID
	}
	return out, nil
}

func (p *Processor) begin(ctx context.Context, msg Message) (context.Context, *MessageState, error) {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.UserID == "" {
		return ctx, nil, &Failure{Stage: StageInput, Code: CodeInvalidInput, Message: "missing user id"}
	}
	if msg.Text == "" {
		return ctx, nil, &Failure{Stage: StageInput, Code: CodeInvalidInput, Message: "missing text"}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Source == "" {
		msg.Source = domain.SourceAPI
	}

	now := p.now()
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}

	log := logger.WithMessage(logger.FromContext(ctx), msg.UserID, msg.ID)
	ctx = logger.WithContext(ctx, log)
	return ctx, &MessageState{Message: msg, Now: now}, nil
}

func (p *Processor) logFailure(ctx context.Context, err error) {
	log := logger.FromContext(ctx)
	f, ok := AsFailure(err)
	if !ok {
		log.Error().Err(err).Msg("Message processing failed")
		return
	}

	if f.Code == CodeParseLimitReached || f.Code == CodeInvalidInput {
		log.Warn().Str("stage", string(f.Stage)).Str("code", f.Code).Msg(f.Error())
		return
	}

	ev := log.Error().
		Err(f.Err).
		Str("stage", string(f.Stage)).
		Str("code", f.Code)
	if f.Inconsistent {
		ev.Strs("persisted_ids", f.PersistedIDs).
			Bool("inconsistent", true).
			Msg("Message partially persisted, operator action required")
		return
	}
	ev.Msg("Message processing failed")
}

func (p *Processor) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.settings.StoreTimeout)
}

func (p *Processor) location() *time.Location {
	if p.settings.Location == nil {
		return time.UTC
	}
	return p.settings.Location
}

func (p *Processor) audit(ctx context.Context, rec infra.ParseRecord) {
	sctx, cancel := p.storeContext(ctx)
	defer cancel()
	if err := p.auditor.RecordParse(sctx, rec); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to record parse audit")
	}
}

// resolveAccount walks the fallback chain: the parsed bank/last four/type
// lookup chain, the detected account, the cash account, then the default
// institution. Returns nil when all miss.
func (p *Processor) resolveAccount(ctx context.Context, state *MessageState) (*domain.Account, error) {
	log := logger.FromContext(ctx)
	userID := state.Message.UserID
	parsed := state.Parsed

	sctx, cancel := p.storeContext(ctx)
	defer cancel()

	q := postgres.AccountQuery{
		UserID:      userID,
		Institution: strings.TrimSpace(parsed.Bank),
		LastFour:    strings.TrimSpace(domain.Deref(parsed.LastFour)),
		Kind:        domain.AccountKind(domain.Deref(parsed.AccountType)),
	}
	acc, err := p.store.FindAccount(sctx, q)
	if err != nil {
		return nil, fmt.Errorf("resolveAccount: %w", err)
	}
	if acc != nil {
		return acc, nil
	}

	if state.HintAccount != nil {
		log.Debug().Str("account_id", state.HintAccount.ID).Msg("Using detected account")
		return state.HintAccount, nil
	}

	acc, err = p.store.FindAccountByKind(sctx, userID, domain.KindCash)
	if err != nil {
		return nil, fmt.Errorf("resolveAccount: cash fallback: %w", err)
	}
	if acc != nil {
		log.Debug().Str("account_id", acc.ID).Msg("Using cash account")
		return acc, nil
	}

	if p.settings.DefaultInstitution == "" {
		return nil, nil
	}
	acc, err = p.store.FindAccount(sctx, postgres.AccountQuery{UserID: userID, Institution: p.settings.DefaultInstitution})
	if err != nil {
		return nil, fmt.Errorf("resolveAccount: default institution: %w", err)
	}
	if acc != nil {
		log.Debug().Str("account_id", acc.ID).Msg("Using default institution account")
	}
	return acc, nil
}
