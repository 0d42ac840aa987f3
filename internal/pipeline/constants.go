package pipeline

// Stage names the pipeline stage a failure happened in.
type Stage string

const (
	StageInput      Stage = "input"
	StageUsage      Stage = "usage"
	StageRules      Stage = "rules"
	StageParse      Stage = "parse"
	StageSkip       Stage = "skip"
	StageAccount    Stage = "account"
	StageCategory   Stage = "category"
	StageDuplicates Stage = "duplicates"
	StageTransfer   Stage = "transfer"
	StageValidate   Stage = "validate"
	StagePersist    Stage = "persist"
	StageLedger     Stage = "ledger"
)

// Failure codes surfaced to callers.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeParseLimitReached = "PARSE_LIMIT_REACHED"
	CodeStoreError        = "STORE_ERROR"
	CodeModelError        = "MODEL_ERROR"
	CodeNoAccount         = "NO_ACCOUNT"
	CodeInvalidEntry      = "INVALID_ENTRY"
	CodeBalanceConflict   = "BALANCE_CONFLICT"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusParsed  = "parsed"
)

// DefaultSkipReason is recorded when the model gives no reason.
const DefaultSkipReason = "not_transaction"
