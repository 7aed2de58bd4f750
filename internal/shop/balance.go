package shop

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zlkm/farmbot/internal/clock"
	"github.com/zlkm/farmbot/internal/game"
)

var balancePattern = regexp.MustCompile(`([0-9][0-9,]*\.?[0-9]*)`)

// Balance is a parsed balance reply. Value is NaN when the reply could not
// be read; Raw keeps the line as received, or "unknown" after a timeout.
type Balance struct {
	Value float64
	Raw   string
}

func UnknownBalance() Balance {
	return Balance{Value: math.NaN(), Raw: "unknown"}
}

func (b Balance) Known() bool {
	return !math.IsNaN(b.Value) && !math.IsInf(b.Value, 0)
}

// ParseBalance reads the first number in line, ignoring thousands
// separators.
func ParseBalance(line string) Balance {
	b := Balance{Value: math.NaN(), Raw: line}
	m := balancePattern.FindStringSubmatch(line)
	if m == nil {
		return b
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return b
	}
	b.Value = v
	return b
}

// FormatEarned renders an amount the way summaries report it, e.g.
// "$1,234.50", or "unknown".
func FormatEarned(amount float64, known bool) string {
	if !known || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "unknown"
	}
	return "$" + humanize.FormatFloat("#,###.##", amount)
}

// BalanceTracker asks the server for the current balance and takes the
// next incoming line as the answer.
type BalanceTracker struct {
	client  game.Client
	lines   *game.LineHub
	clock   clock.Clock
	logger  *slog.Logger
	command string
	timeout time.Duration
}

func NewBalanceTracker(client game.Client, lines *game.LineHub, clk clock.Clock, logger *slog.Logger, command string, timeout time.Duration) *BalanceTracker {
	return &BalanceTracker{
		client:  client,
		lines:   lines,
		clock:   clk,
		logger:  logger,
		command: command,
		timeout: timeout,
	}
}

// Query never fails: a send error, a timeout or a cancelled ctx all yield
// UnknownBalance.
func (t *BalanceTracker) Query(ctx context.Context) Balance {
	sub := t.lines.Subscribe(nil, 1)
	if err := t.client.Chat(t.command); err != nil {
		sub.Cancel()
		t.logger.Warn("Balance query failed", slog.Any("error", err))
		return UnknownBalance()
	}

	line, ok := game.Await(ctx, t.clock, sub, t.timeout)
	if !ok {
		t.logger.Info("Balance query timed out", slog.Duration("timeout", t.timeout))
		return UnknownBalance()
	}

	t.logger.Debug("Captured balance reply", slog.String("line", line))
	return ParseBalance(line)
}
