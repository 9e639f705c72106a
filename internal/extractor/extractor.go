// Package extractor turns bank notification email text into candidate
// transactions.
package extractor

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bank-txn-monitor/internal/model"
)

// Rule maps a sender to the pattern that extracts amount and reference from
// that sender's notifications. Pattern must have two capture groups: the
// amount first, then the reference. The poller picks the rule by the
// message's From header through ExtractFrom.
type Rule struct {
	Name    string
	Sender  string
	Pattern *regexp.Regexp
}

// HDFCCredit matches "Rs.<amount> is successfully credited ... reference
// number is <digits>" with any text, including newlines, in between.
var HDFCCredit = Rule{
	Name:    "hdfc-credit",
	Sender:  "alerts@hdfcbank.net",
	Pattern: regexp.MustCompile(`(?s)Rs\.(\d+\.\d{2}) is successfully credited.*?reference number is (\d+)`),
}

// Extractor applies a set of rules to email bodies
type Extractor struct {
	rules []Rule
	now   func() time.Time
}

// New creates an extractor. With no rules it uses HDFCCredit.
func New(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = []Rule{HDFCCredit}
	}
	return &Extractor{rules: rules, now: time.Now}
}

// Extract applies the first rule to body. It returns false when the body
// holds no transaction.
func (e *Extractor) Extract(body string) (*model.Transaction, bool) {
	return e.extract(e.rules[0], body)
}

// ExtractFrom picks the rule whose sender appears in the From value and
// applies it. Unknown senders yield nothing.
func (e *Extractor) ExtractFrom(from, body string) (*model.Transaction, bool) {
	from = strings.ToLower(from)
	for _, rule := range e.rules {
		if rule.Sender != "" && strings.Contains(from, strings.ToLower(rule.Sender)) {
			return e.extract(rule, body)
		}
	}
	return nil, false
}

func (e *Extractor) extract(rule Rule, body string) (*model.Transaction, bool) {
	if body == "" {
		return nil, false
	}

	m := rule.Pattern.FindStringSubmatch(body)
	if len(m) < 3 {
		return nil, false
	}

	amount, err := decimal.NewFromString(m[1])
	if err != nil || amount.IsNegative() {
		return nil, false
	}

	return &model.Transaction{
		Amount:    amount,
		Reference: m[2],
		Timestamp: e.now(),
		Claimed:   false,
	}, true
}
