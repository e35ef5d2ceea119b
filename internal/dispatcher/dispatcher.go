// Package dispatcher implements the notification service: it delivers
// price updates and trading signals to their chat channels, enforces
// the provider's rate limit and posts a periodic market outlook.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/kernel"
	"github.com/cryptopulse/cryptopulse/internal/metrics"
	"github.com/cryptopulse/cryptopulse/internal/resilience"
	"github.com/cryptopulse/cryptopulse/internal/store"
)

// ServiceName identifies the dispatcher in logs, metrics and the registry.
const ServiceName = "notification_service"

// Port is the dispatcher's fixed HTTP surface port.
const Port = 8005

// Group is the dispatcher's consumer group on both subscribed streams.
const Group = "notification_service"

// OutlookCadence is the period of the standalone market-outlook post.
const OutlookCadence = 5 * time.Minute

// Telegram's per-bot limit.
const (
	sendLimit  = 30
	sendWindow = time.Second
)

const btcSymbol = "BTCUSDT"

// reasonOrder fixes the category order in signal messages.
var reasonOrder = []string{"trend", "wyckoff", "indicators", "volume", "dominance", "safety"}

// AnalysisReader loads the latest analysis document.
type AnalysisReader interface {
	Latest(ctx context.Context) (*store.AnalysisDocument, error)
}

// SignalReader loads a stored signal by its id.
type SignalReader interface {
	BySignalID(ctx context.Context, id string) (*store.Signal, error)
}

// Dispatcher consumes price and signal events and posts to chat.
type Dispatcher struct {
	cfg      *config.Config
	sender   Sender
	analyses AnalysisReader
	signals  SignalReader
	limiter  *slidingWindow
	breakers *resilience.BreakerSet
	retry    resilience.Policy
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

func New(cfg *config.Config, sender Sender, analyses AnalysisReader, signals SignalReader) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		sender:   sender,
		analyses: analyses,
		signals:  signals,
		limiter:  newSlidingWindow(sendLimit, sendWindow),
		breakers: resilience.NewBreakerSet(cfg.Breaker),
		retry:    resilience.PolicyFromConfig(cfg.Retry),
		loc:      time.Local,
		now:      time.Now,
		log:      config.NewServiceLogger(ServiceName),
	}
}

// HandleEvent routes one bus message to its handler.
func (d *Dispatcher) HandleEvent(ctx context.Context, event string, data []byte) error {
	switch event {
	case events.PriceUpdateReady:
		var payload events.PriceUpdateReadyPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return d.handlePriceUpdate(ctx, &payload)
	case events.SignalGenerated:
		var payload events.SignalGeneratedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		return d.handleSignal(ctx, &payload)
	default:
		d.log.Warn().Str("event", event).Msg("Unexpected event, ignoring")
		return nil
	}
}

// handlePriceUpdate posts the compact price line to the price channel.
func (d *Dispatcher) handlePriceUpdate(ctx context.Context, payload *events.PriceUpdateReadyPayload) error {
	line := payload.Message
	if line == "" {
		line = priceLine(payload.Prices)
	}
	if line == "" {
		return nil
	}

	text := fmt.Sprintf("[%s] %s", d.now().In(d.loc).Format("15:04:05"), line)
	for _, v := range payload.Volatilities {
		text += fmt.Sprintf("\n⚡ %s %s %+.2f%% (%s)", v.Symbol, v.Type, v.ChangePct, v.Timeframe)
	}

	if err := d.send(ctx, d.cfg.Telegram.PriceChatID, text, "price"); err != nil {
		return err
	}
	d.log.Info().Int("prices", len(payload.Prices)).Msg("Price update sent")
	return nil
}

// handleSignal loads the full signal and posts the rich message to the
// signal channel. A signal missing from storage is logged and acked;
// it can never appear on redelivery either.
func (d *Dispatcher) handleSignal(ctx context.Context, payload *events.SignalGeneratedPayload) error {
	signal, err := d.signals.BySignalID(ctx, payload.SignalID)
	if errors.Is(err, store.ErrNotFound) {
		d.log.Warn().Str("signal_id", payload.SignalID).Msg("Signal not found in storage")
		return nil
	}
	if err != nil {
		return err
	}

	doc, err := d.analyses.Latest(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		d.log.Warn().Err(err).Msg("Outlook unavailable for signal message")
	}

	text := d.formatSignalMessage(signal, doc)
	if err := d.send(ctx, d.cfg.Telegram.SignalChatID, text, "signal"); err != nil {
		return err
	}
	d.log.Info().
		Str("signal_id", signal.SignalID).
		Str("asset", signal.Asset).
		Str("type", signal.Type).
		Msg("Signal sent")
	return nil
}

// RunOutlook posts the market outlook every five minutes until ctx is
// cancelled.
func (d *Dispatcher) RunOutlook(ctx context.Context) error {
	return kernel.RunEvery(ctx, OutlookCadence, func(cycleCtx context.Context) {
		doc, err := d.analyses.Latest(cycleCtx)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			d.log.Error().Err(err).Msg("Failed to load analysis for outlook")
			return
		}
		text := formatOutlookMessage(doc, btcSymbol, d.now())
		if err := d.send(cycleCtx, d.cfg.Telegram.SignalChatID, text, "outlook"); err != nil {
			d.log.Error().Err(err).Msg("Failed to send outlook")
		}
	})
}

// send delivers one message under the rate window, retry policy and the
// provider circuit breaker.
func (d *Dispatcher) send(ctx context.Context, chatID int64, text, channel string) error {
	breaker := d.breakers.Get("telegram")
	err := resilience.Retry(ctx, d.retry, func(ctx context.Context) error {
		return breaker.Execute(ctx, func(context.Context) error {
			d.limiter.Wait()
			if err := d.sender.Send(chatID, text); err != nil {
				return err
			}
			d.limiter.Record()
			return nil
		})
	})
	if err != nil {
		metrics.RecordNotification(channel, "error")
		metrics.RecordError(ServiceName, "external_api")
		return err
	}
	metrics.RecordNotification(channel, "success")
	return nil
}

// formatSignalMessage renders the rich HTML signal post.
func (d *Dispatcher) formatSignalMessage(signal *store.Signal, doc *store.AnalysisDocument) string {
	typeMarker := "📈"
	if signal.Type == "SHORT" {
		typeMarker = "📉"
	}
	confMarker := "🟡"
	if signal.Confidence == "HIGH" {
		confMarker = "🟢"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>🎯 TRADE SIGNAL</b> %s\n\n", typeMarker, typeMarker)
	fmt.Fprintf(&b, "<b>Asset:</b> %s\n", strings.TrimSuffix(signal.Asset, "USDT"))
	fmt.Fprintf(&b, "<b>Type:</b> %s\n", signal.Type)
	fmt.Fprintf(&b, "<b>Score:</b> %d/100\n", signal.Score)
	fmt.Fprintf(&b, "<b>Confidence:</b> %s %s\n\n", confMarker, signal.Confidence)

	fmt.Fprintf(&b, "<b>Entry Range:</b> %s - %s\n", usd(signal.EntryRange.Min), usd(signal.EntryRange.Max))
	if len(signal.TakeProfit) > 0 {
		targets := make([]string, len(signal.TakeProfit))
		for i, tp := range signal.TakeProfit {
			targets[i] = usd(tp)
		}
		fmt.Fprintf(&b, "<b>Take Profit:</b> %s\n", strings.Join(targets, ", "))
	}
	fmt.Fprintf(&b, "<b>Stop Loss:</b> %s\n\n", usd(signal.StopLoss))

	if doc != nil {
		o := composeOutlook(doc, signal.Asset, d.now())
		if !o.NoData {
			b.WriteString("<b>📊 Market Outlook:</b>\n")
			fmt.Fprintf(&b, "%s %s (%s)\n", o.Emoji, o.Summary, strings.Join(o.Lines, ", "))
			fmt.Fprintf(&b, "<b>Suggested bias:</b> %s %s\n\n", biasMarker(o.Bias), o.Bias)
		}
	}

	b.WriteString("<b>Reasons:</b>\n")
	for _, category := range reasonOrder {
		reasons := signal.Reasons[category]
		if len(reasons) == 0 {
			continue
		}
		fmt.Fprintf(&b, "• %s: %s\n", strings.ToUpper(category), strings.Join(reasons, ", "))
	}

	fmt.Fprintf(&b, "\n⏱ %s", signal.Timestamp.UTC().Format("2006-01-02 15:04:05"))
	return b.String()
}

// priceLine rebuilds the compact line when the event carried none.
func priceLine(prices map[string]float64) string {
	symbols := make([]string, 0, len(prices))
	for symbol := range prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	parts := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		parts = append(parts, fmt.Sprintf("%s:%.2f", strings.TrimSuffix(symbol, "USDT"), prices[symbol]))
	}
	return strings.Join(parts, "|")
}

// usd renders a dollar amount with thousands separators.
func usd(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, fracPart, _ := strings.Cut(s, ".")

	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%s", sign, b.String(), fracPart)
}
