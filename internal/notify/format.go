package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alphawatch/alphawatch/internal/domain"
)

// FormatEvent renders a confluence event as the HTML message delivered to
// the chat sink. Length limits and splitting are the sink's problem.
func FormatEvent(ev domain.ConfluenceEvent) string {
	var b strings.Builder

	b.WriteString(ruleHeader(ev.Rule))
	b.WriteString("\n\n")

	for _, p := range ev.Participants {
		emoji := "🔴"
		if p.Side == domain.SideBuy {
			emoji = "🟢"
		}
		fmt.Fprintf(&b, "%s <a href='https://solscan.io/account/%s'>%s</a> %s %s $%s\n",
			emoji, p.Wallet, shortAddr(p.Wallet), traderLabel(p.TraderType), p.Side, formatUSD(p.USDAmount))
	}

	span := ev.WindowEnd.Sub(ev.WindowStart)
	fmt.Fprintf(&b, "\n💵 Total: $%s over %s\n", formatUSD(ev.TotalUSDVolume), span.Round(time.Second))
	fmt.Fprintf(&b, "\n<code>%s</code>", ev.Token)

	return b.String()
}

func ruleHeader(rule domain.RuleKind) string {
	switch rule {
	case domain.RuleAlphaConfluence:
		return "🎯 Multiple alpha wallets active on the same token"
	case domain.RuleAlphaFollow:
		return "🐋 Alpha entry followed by other tracked traders"
	case domain.RuleDiverseActivity:
		return "💫 Multiple trader types converging on one token"
	default:
		return "🔍 Confluence detected"
	}
}

func traderLabel(t domain.TraderType) string {
	switch t {
	case domain.TraderInsider:
		return "Insider"
	case domain.TraderAlpha:
		return "Alpha"
	case domain.TraderVolumeLeader:
		return "Volume Leader"
	case domain.TraderConsistentPerformer:
		return "Consistent"
	default:
		return string(t)
	}
}

// shortAddr renders 6+4 notation for display.
func shortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// formatUSD adds thousands separators and two decimals.
func formatUSD(amount float64) string {
	s := fmt.Sprintf("%.2f", amount)
	dot := strings.Index(s, ".")
	intPart, frac := s[:dot], s[dot:]

	var neg bool
	if strings.HasPrefix(intPart, "-") {
		neg = true
		intPart = intPart[1:]
	}

	var b strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}

	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
