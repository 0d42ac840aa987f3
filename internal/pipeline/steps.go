package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/duplicates"
	"github.com/dvloznov/expense-assistant/internal/gemini"
	infra "github.com/dvloznov/expense-assistant/internal/infra/bigquery"
	"github.com/dvloznov/expense-assistant/internal/infra/postgres"
	"github.com/dvloznov/expense-assistant/internal/ledger"
	"github.com/dvloznov/expense-assistant/internal/logger"
	"github.com/dvloznov/expense-assistant/internal/rules"
	"github.com/dvloznov/expense-assistant/internal/transfer"
)

// PipelineStep represents a single step in message processing.
type PipelineStep interface {
	Execute(ctx context.Context, state *MessageState) error
}

// MessageState holds the shared state across all pipeline steps.
type MessageState struct {
	Message Message
	Now     time.Time

	ActiveRules    []domain.AutomationRule
	DetectionRules []domain.AutomationRule
	TransferRules  []domain.AutomationRule
	Categories     []domain.Category

	HintAccount *domain.Account
	Usage       *domain.UsageCheck

	Parsed    domain.ParsedExpense
	FromCache bool
	Skipped   *domain.SkippedMessage

	Date     string
	Time     string
	Account  *domain.Account
	Category *domain.Category

	Candidate domain.Transaction
	Duplicate *duplicates.Match
	Transfer  *transfer.Info
	Entries   []domain.Transaction
	Persisted []domain.Transaction

	halted bool
}

// Halt stops the pipeline after the current step without an error.
func (s *MessageState) Halt() {
	s.halted = true
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially until one fails or halts the state.
func (p *Pipeline) Execute(ctx context.Context, state *MessageState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		if state.halted {
			return nil
		}
	}
	return nil
}

// CachedParseStep serves a previously parsed record for the same text. A hit
// never reaches the model, so it is not charged against the quota.
type CachedParseStep struct{ p *Processor }

func (s *CachedParseStep) Execute(ctx context.Context, state *MessageState) error {
	if s.p.cache == nil {
		return nil
	}
	parsed, ok := s.p.cache.GetParse(state.Message.UserID, state.Message.Text)
	if !ok {
		return nil
	}
	state.Parsed = parsed
	state.FromCache = true
	log := logger.FromContext(ctx)
	log.Debug().Msg("Parse served from cache")
	return nil
}

// CheckUsageStep consumes one AI parse from the monthly quota.
type CheckUsageStep struct{ p *Processor }

func (s *CheckUsageStep) Execute(ctx context.Context, state *MessageState) error {
	limits := s.p.settings.Limits
	if limits.AIParses <= 0 || state.FromCache {
		return nil
	}

	sctx, cancel := s.p.storeContext(ctx)
	defer cancel()

	month := postgres.Month(state.Now.In(s.p.location()))
	check, err := s.p.store.IncrementAIParses(sctx, state.Message.UserID, month, limits)
	if err != nil {
		return fail(StageUsage, CodeStoreError, err)
	}
	state.Usage = &check
	if !check.Allowed {
		return &Failure{
			Stage:   StageUsage,
			Code:    CodeParseLimitReached,
			Message: "monthly AI parse limit reached",
			Err:     &LimitError{Used: check.Used, Limit: check.Limit},
		}
	}
	return nil
}

// LoadContextStep loads the rule lists and categories for the user.
type LoadContextStep struct{ p *Processor }

func (s *LoadContextStep) Execute(ctx context.Context, state *MessageState) error {
	sctx, cancel := s.p.storeContext(ctx)
	defer cancel()

	userID := state.Message.UserID
	var err error
	if state.ActiveRules, err = s.p.store.ListActiveRules(sctx, userID); err != nil {
		return fail(StageRules, CodeStoreError, err)
	}
	if state.DetectionRules, err = s.p.store.ListAccountDetectionRules(sctx, userID); err != nil {
		return fail(StageRules, CodeStoreError, err)
	}
	if state.TransferRules, err = s.p.store.ListTransferRules(sctx, userID); err != nil {
		return fail(StageRules, CodeStoreError, err)
	}
	if state.Categories, err = s.p.store.ListCategories(sctx, userID); err != nil {
		return fail(StageCategory, CodeStoreError, err)
	}
	return nil
}

// DetectAccountStep runs the pre-parse account detection pass.
type DetectAccountStep struct{ p *Processor }

func (s *DetectAccountStep) Execute(ctx context.Context, state *MessageState) error {
	rule := s.p.engine.DetectAccount(ctx, state.Message.Text, state.DetectionRules)
	if rule == nil || rule.Actions.SetAccount == "" {
		return nil
	}

	sctx, cancel := s.p.storeContext(ctx)
	defer cancel()

	acc, err := s.p.store.GetAccount(sctx, state.Message.UserID, rule.Actions.SetAccount)
	if err != nil {
		return fail(StageAccount, CodeStoreError, err)
	}
	if acc == nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("rule_id", rule.ID).
			Str("account_id", rule.Actions.SetAccount).
			Msg("Account detection rule points at an unknown account")
		return nil
	}
	state.HintAccount = acc
	return nil
}

// ParseStep asks the model for the structured record unless the cache
// already supplied it.
type ParseStep struct{ p *Processor }

func (s *ParseStep) Execute(ctx context.Context, state *MessageState) error {
	if state.FromCache {
		return nil
	}
	msg := state.Message

	loc := s.p.location()
	date, clock := CurrentDateTime(state.Now, loc)
	pc := gemini.PromptContext{
		CurrentDate:     date,
		CurrentTime:     clock,
		Timezone:        loc.String(),
		Categories:      state.Categories,
		AccountHint:     state.HintAccount,
		TransferSection: transfer.BuildTransferPromptSection(state.TransferRules),
		RulesSection:    transfer.BuildAutomationRulesPromptSection(postParseRules(state.ActiveRules)),
		PromptTexts:     promptTexts(state.ActiveRules),
	}

	mctx, cancel := context.WithTimeout(ctx, s.p.settings.ModelTimeout)
	defer cancel()

	started := s.p.now()
	res, err := s.p.parser.ParseExpense(mctx, msg.Text, pc)
	rec := infra.ParseRecord{
		MessageID:    msg.ID,
		UserID:       msg.UserID,
		Source:       msg.Source,
		Model:        s.p.parser.Model(),
		StartedAt:    started,
		FinishedAt:   s.p.now(),
		Err:          err,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		RawOutput:    res.Raw,
	}
	if err == nil {
		rec.Parsed = &res.Parsed
		rec.TransactionDate, _ = ResolveDateTime(res.Parsed.OriginalDate, nil, state.Now, loc)
	}
	s.p.audit(ctx, rec)

	if err != nil {
		return fail(StageParse, CodeModelError, err)
	}

	state.Parsed = res.Parsed
	if s.p.cache != nil {
		s.p.cache.SetParse(msg.UserID, msg.Text, res.Parsed)
	}
	return nil
}

// SkipStep records non-transactional messages and halts the pipeline.
type SkipStep struct{ p *Processor }

func (s *SkipStep) Execute(ctx context.Context, state *MessageState) error {
	if state.Parsed.IsTransaction {
		return nil
	}

	reason := DefaultSkipReason
	if r := strings.TrimSpace(domain.Deref(state.Parsed.SkipReason)); r != "" {
		reason = r
	}

	sctx, cancel := s.p.storeContext(ctx)
	defer cancel()

	saved, err := s.p.store.InsertSkippedMessage(sctx, domain.SkippedMessage{
		UserID:     state.Message.UserID,
		RawText:    state.Message.Text,
		Source:     state.Message.Source,
		Reason:     reason,
		ParsedData: state.Parsed.JSON(),
	})
	if err != nil {
		return fail(StageSkip, CodeStoreError, err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("reason", reason).Msg("Message skipped")
	state.Skipped = &saved
	state.Halt()
	return nil
}

// NormalizeDateStep repairs the parsed date and time, defaulting to now.
type NormalizeDateStep struct{ p *Processor }

func (s *NormalizeDateStep) Execute(ctx context.Context, state *MessageState) error {
	p := &state.Parsed
	if p.OriginalDate != nil {
		if fixed, ok := ValidateAndFixDate(*p.OriginalDate); ok {
			p.OriginalDate = domain.StringPtr(fixed)
		}
	}
	if p.OriginalTime != nil {
		if fixed, ok := ValidateAndFixTime(*p.OriginalTime); ok {
			p.OriginalTime = domain.StringPtr(fixed)
		}
	}
	state.Date, state.Time = ResolveDateTime(p.OriginalDate, p.OriginalTime, state.Now, s.p.location())
	return nil
}

// ResolveAccountStep resolves the account. When Required is false a miss
// leaves the account nil.
type ResolveAccountStep struct {
	p        *Processor
	Required bool
}

func (s *ResolveAccountStep) Execute(ctx context.Context, state *MessageState) error {
	acc, err := s.p.resolveAccount(ctx, state)
	if err != nil {
		return fail(StageAccount, CodeStoreError, err)
	}
	if acc == nil && s.Required {
		return fail(StageAccount, CodeNoAccount, ErrNoAccount)
	}
	state.Account = acc
	return nil
}

// ResolveCategoryStep maps the parsed slug to the user's category.
type ResolveCategoryStep struct{ p *Processor }

func (s *ResolveCategoryStep) Execute(ctx context.Context, state *MessageState) error {
	slug := strings.TrimSpace(state.Parsed.Category)
	if slug == "" {
		return nil
	}

	sctx, cancel := s.p.storeContext(ctx)
	defer cancel()

	cat, err := s.p.store.FindCategoryBySlug(sctx, state.Message.UserID, slug)
	if err != nil {
		return fail(StageCategory, CodeStoreError, err)
	}
	if cat == nil {
		log := logger.FromContext(ctx)
		log.Debug().Str("slug", slug).Msg("Category not found")
	}
	state.Category = cat
	return nil
}

// BuildCandidateStep assembles the base transaction.
type BuildCandidateStep struct{ p *Processor }

func (s *BuildCandidateStep) Execute(ctx context.Context, state *MessageState) error {
	parsed := state.Parsed
	tx := domain.Transaction{
		UserID:          state.Message.UserID,
		Date:            state.Date,
		Time:            state.Time,
		Amount:          parsed.AmountMinor(),
		Description:     strings.TrimSpace(parsed.Description),
		AccountID:       state.Account.ID,
		Type:            domain.TypeExpense,
		PaymentMethod:   parsed.PaymentType,
		Source:          state.Message.Source,
		Confidence:      parsed.Confidence,
		RawText:         state.Message.Text,
		ParsedData:      parsed.JSON(),
		DuplicateStatus: domain.DuplicateNone,
	}
	if state.Category != nil {
		tx.CategoryID = domain.StringPtr(state.Category.ID)
		if state.Category.Type == domain.TypeIncome {
			tx.Type = domain.TypeIncome
		}
	}
	state.Candidate = tx
	return nil
}

// ClassifyDuplicatesStep annotates the candidate before any expansion so
// every resulting entry carries the same verdict.
type ClassifyDuplicatesStep struct{ p *Processor }

func (s *ClassifyDuplicatesStep) Execute(ctx context.Context, state *MessageState) error {
	sctx, cancel := s.p.storeContext(ctx)
	defer cancel()

	match, err := s.p.classifier.Classify(sctx, duplicates.CandidateFromTransaction(state.Candidate))
	if err != nil {
		return fail(StageDuplicates, CodeStoreError, err)
	}
	duplicates.Annotate(&state.Candidate, match)
	state.Duplicate = match
	return nil
}

// ExpandTransferStep decides whether the candidate becomes one or two entries.
type ExpandTransferStep struct{ p *Processor }

func (s *ExpandTransferStep) Execute(ctx context.Context, state *MessageState) error {
	if !transfer.IsTransferMessage(state.Message.Text, state.Parsed.Category) {
		state.Entries = []domain.Transaction{state.Candidate}
		return nil
	}

	sctx, cancel := s.p.storeContext(ctx)
	defer cancel()

	var cats transfer.Categories
	userID := state.Message.UserID
	transferCat, err := s.p.store.FindCategoryBySlug(sctx, userID, domain.CategoryTransfer)
	if err != nil {
		return fail(StageTransfer, CodeStoreError, err)
	}
	if transferCat != nil {
		cats.Transfer = domain.StringPtr(transferCat.ID)
	}
	missingCat, err := s.p.store.FindCategoryBySlug(sctx, userID, domain.CategoryMissing)
	if err != nil {
		return fail(StageTransfer, CodeStoreError, err)
	}
	if missingCat != nil {
		cats.Missing = domain.StringPtr(missingCat.ID)
	}

	exp := transfer.Expand(state.Candidate, state.Message.Text, state.TransferRules, cats)
	state.Entries = exp.Entries
	state.Transfer = &exp.Info

	log := logger.FromContext(ctx)
	log.Info().
		Bool("internal", exp.Info.IsInternalTransfer).
		Str("phone", exp.Info.DestinationPhone).
		Int("entries", len(exp.Entries)).
		Msg("Transfer message expanded")
	return nil
}

// ApplyRulesStep folds the post-parse rules over each entry.
type ApplyRulesStep struct{ p *Processor }

func (s *ApplyRulesStep) Execute(ctx context.Context, state *MessageState) error {
	ruleSet := postParseRules(state.ActiveRules)
	for i, entry := range state.Entries {
		out, _ := s.p.engine.Apply(ctx, entry, ruleSet)
		state.Entries[i] = out
	}
	return nil
}

// ValidateEntriesStep rejects the message before the first write when any
// entry is malformed.
type ValidateEntriesStep struct{ p *Processor }

func (s *ValidateEntriesStep) Execute(ctx context.Context, state *MessageState) error {
	if err := validateEntries(state.Entries); err != nil {
		return fail(StageValidate, CodeInvalidEntry, err)
	}
	return nil
}

// PersistStep inserts each entry and posts it to the ledger.
type PersistStep struct{ p *Processor }

func (s *PersistStep) Execute(ctx context.Context, state *MessageState) error {
	var ids []string
	for _, entry := range state.Entries {
		sctx, cancel := s.p.storeContext(ctx)
		saved, err := s.p.store.InsertTransaction(sctx, entry)
		cancel()
		if err != nil {
			return partialFailure(StagePersist, CodeStoreError, err, ids)
		}
		ids = append(ids, saved.ID)
		state.Persisted = append(state.Persisted, saved)

		sctx, cancel = s.p.storeContext(ctx)
		err = s.p.ledger.Post(sctx, saved)
		cancel()
		if err != nil {
			code := CodeStoreError
			if errors.Is(err, ledger.ErrBalanceConflict) {
				code = CodeBalanceConflict
			}
			return partialFailure(StageLedger, code, err, ids)
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Strs("transaction_ids", ids).
		Msg("Message persisted")
	return nil
}

// CountTransactionsStep meters persisted entries. The entries are already
// committed, so a metering error is only logged.
type CountTransactionsStep struct{ p *Processor }

func (s *CountTransactionsStep) Execute(ctx context.Context, state *MessageState) error {
	if len(state.Persisted) == 0 || s.p.settings.Limits.Transactions <= 0 {
		return nil
	}

	sctx, cancel := s.p.storeContext(ctx)
	defer cancel()

	month := postgres.Month(state.Now.In(s.p.location()))
	check, err := s.p.store.IncrementTransactions(sctx, state.Message.UserID, month, len(state.Persisted), s.p.settings.Limits)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to count transactions")
		return nil
	}
	if !check.Allowed {
		log := logger.FromContext(ctx)
		log.Warn().
			Int("used", check.Used).
			Int("limit", check.Limit).
			Msg("Monthly transaction limit exceeded")
	}
	return nil
}

// postParseRules drops the phone-mapped rules consumed by the transfer
// expander.
func postParseRules(all []domain.AutomationRule) []domain.AutomationRule {
	out := make([]domain.AutomationRule, 0, len(all))
	for _, r := range rules.GeneralRules(all) {
		if r.MatchPhone != nil && *r.MatchPhone != "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// promptTexts collects the prompt_text of evaluable rules.
func promptTexts(all []domain.AutomationRule) []string {
	var out []string
	for _, r := range all {
		if r.Evaluable() && r.PromptText != nil && strings.TrimSpace(*r.PromptText) != "" {
			out = append(out, *r.PromptText)
		}
	}
	return out
}
