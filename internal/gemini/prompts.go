package gemini

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/domain"
)

const parseInstructions = `You are a financial assistant that extracts expense data from Colombian bank notifications and chat messages.

CURRENT_DATE: %s (format: YYYY-MM-DD)
CURRENT_TIME: %s (format: HH:MM, 24-hour)
Both values are in the %s timezone. Use them to resolve relative dates such as "hoy" or "ayer". Output dates as DD/MM/YYYY.

POSSIBLE INPUTS:
1. Bank email or SMS: "Bancolombia: Compraste $X en Y con tu T.Deb *XXXX, el DD/MM/YYYY a las HH:MM"
2. Wallet SMS: "Nequi: Pagaste $X en Y. Saldo: $Z"
3. Manual message: "20k in rappi", "50mil for lunch" (Spanish or English)

Before parsing, decide whether the message is a real transaction. Spending summaries, balance inquiries,
promotions, OTP codes, account alerts and reminders are NOT transactions: set is_transaction=false and
give a short skip_reason such as "spending_summary", "balance_inquiry", "otp_code", "promotional" or "informational".

OUTPUT (strict JSON object, no markdown):
{
  "is_transaction": boolean,
  "skip_reason": string | null,
  "amount": number,
  "description": string,
  "category": "slug-from-list-below",
  "bank": "bancolombia|nequi|daviplata|cash|other",
  "payment_type": "debit|credit|cash|transfer|qr",
  "confidence": number (0-100),
  "original_date": "DD/MM/YYYY" | null,
  "original_time": "HH:MM" | null,
  "last_four": string | null,
  "account_type": "checking|savings|credit_card|credit" | null
}

PARSING RULES:
- "k" means thousands and "mil" means thousands: "20k" = 20000, "50mil" = 50000.
- Colombian amounts use "." as thousands separator: "$1.250.000" = 1250000.
- amount is always positive; the category carries the direction.
- last_four is the card or account suffix after "*" when present.
- Money sent to another person or account is category "transfer".
- When nothing fits, use category "missing".
`

// PromptContext carries the per-request sections of the parse prompt.
type PromptContext struct {
	CurrentDate string // YYYY-MM-DD
	CurrentTime string // HH:MM
	Timezone    string

	Categories      []domain.Category
	AccountHint     *domain.Account
	TransferSection string
	RulesSection    string
	PromptTexts     []string
}

// BuildParsePrompt assembles the system prompt for one parse request.
func BuildParsePrompt(pc PromptContext) string {
	tz := pc.Timezone
	if tz == "" {
		tz = "America/Bogota"
	}
	date, clock := pc.CurrentDate, pc.CurrentTime
	if date == "" {
		date = "unknown"
	}
	if clock == "" {
		clock = "unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, parseInstructions, date, clock, tz)

	b.WriteString("\n")
	b.WriteString(buildCategoriesSection(pc.Categories))

	if pc.AccountHint != nil {
		acc := pc.AccountHint
		b.WriteString("\nACCOUNT HINT:\n")
		fmt.Fprintf(&b, "The message most likely belongs to %q (%s, %s", acc.Name, acc.Institution, acc.Kind)
		if acc.LastFour != nil && *acc.LastFour != "" {
			fmt.Fprintf(&b, ", *%s", *acc.LastFour)
		}
		b.WriteString("). Prefer its bank and account_type when the text is ambiguous.\n")
	}

	if pc.TransferSection != "" {
		b.WriteString("\n")
		b.WriteString(pc.TransferSection)
		b.WriteString("\n")
	}
	if pc.RulesSection != "" {
		b.WriteString("\n")
		b.WriteString(pc.RulesSection)
		b.WriteString("\n")
	}

	var extra []string
	for _, t := range pc.PromptTexts {
		if t = strings.TrimSpace(t); t != "" {
			extra = append(extra, "- "+t)
		}
	}
	if len(extra) > 0 {
		b.WriteString("\nADDITIONAL USER INSTRUCTIONS:\n")
		b.WriteString(strings.Join(extra, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nRespond with ONLY the JSON object.\n")
	return b.String()
}

// buildCategoriesSection lists the user's category slugs grouped by type.
func buildCategoriesSection(categories []domain.Category) string {
	var b strings.Builder
	b.WriteString("CATEGORY SLUGS (choose the most specific):\n")
	if len(categories) == 0 {
		b.WriteString("- missing\n- transfer\n")
		return b.String()
	}

	byType := make(map[domain.TransactionType][]string)
	for _, c := range categories {
		byType[c.Type] = append(byType[c.Type], fmt.Sprintf("- %s: %s", c.Slug, c.Name))
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)

	for _, t := range types {
		label := strings.ToUpper(t)
		if label == "" {
			label = "OTHER"
		}
		b.WriteString(label + ":\n")
		lines := byType[domain.TransactionType(t)]
		sort.Strings(lines)
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

const generateInstructions = `You generate automation rules for a personal finance tracker from a natural-language description.

RULE SCHEMA:
{
  "name": string,
  "is_active": boolean,
  "priority": number (1-100, higher runs first, default 50),
  "rule_type": "general" | "account_detection" | "transfer",
  "condition_logic": "and" | "or",
  "conditions": object,
  "actions": object
}

CONDITION FIELDS (all optional):
- description_contains: string[]
- description_regex: string (RE2 syntax, no lookaround)
- raw_text_contains: string[] (matched against the unparsed message; use for account_detection)
- amount_between: [number, number]
- amount_equals: number
- from_account: string (account ID)
- source: string[]

ACTION FIELDS (all optional):
- set_type: "expense" | "income" | "transfer"
- set_category: category ID from the context
- set_account: account ID from the context
- link_to_account: destination account ID from the context
- auto_reconcile: boolean
- add_note: string

GUIDELINES:
1. Use IDs from the context, never names or slugs, in actions.
2. Prefer specific conditions over broad ones.
3. Default condition_logic to "or" for general rules and "and" for account_detection rules.
4. Several rules are fine when the description implies several automations.
5. Leave out empty arrays and null values.

Respond with ONLY a JSON array of rule objects.
`

// GenerateContext is the user data the rule generator may reference.
type GenerateContext struct {
	Accounts      []domain.Account
	Categories    []domain.Category
	ExistingRules []domain.AutomationRule
}

// BuildGeneratePrompt assembles the rule-generation prompt.
func BuildGeneratePrompt(gc GenerateContext) string {
	var b strings.Builder
	b.WriteString(generateInstructions)

	b.WriteString("\nACCOUNTS:\n")
	if len(gc.Accounts) == 0 {
		b.WriteString("(none)\n")
	}
	for _, a := range gc.Accounts {
		fmt.Fprintf(&b, "- id=%s name=%q institution=%s type=%s", a.ID, a.Name, a.Institution, a.Kind)
		if a.LastFour != nil && *a.LastFour != "" {
			fmt.Fprintf(&b, " last_four=%s", *a.LastFour)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nCATEGORIES:\n")
	if len(gc.Categories) == 0 {
		b.WriteString("(none)\n")
	}
	for _, c := range gc.Categories {
		fmt.Fprintf(&b, "- id=%s slug=%s name=%q type=%s\n", c.ID, c.Slug, c.Name, c.Type)
	}

	if len(gc.ExistingRules) > 0 {
		b.WriteString("\nEXISTING RULES (avoid duplicates):\n")
		for _, r := range gc.ExistingRules {
			fmt.Fprintf(&b, "- %s (%s, priority %d)\n", r.Name, r.RuleType, r.Priority)
		}
	}
	return b.String()
}
