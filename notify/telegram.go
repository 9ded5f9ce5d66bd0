// Package notify delivers fire-and-forget human-readable alerts. Delivery
// failures are logged and never fail the trading cycle.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"mirae/logger"
)

// Notifier notification channel for order attempts and errors
type Notifier interface {
	// TradeAlert announces an executed order
	TradeAlert(rec *logger.TradeRecord, holdingDays float64)
	// ErrorAlert announces an unexpected failure
	ErrorAlert(errorType, code, name, message string)
	// DailySummary announces the close-of-session roll-up
	DailySummary(mode string, stats *logger.DailyStats)
}

// Nop discards all alerts (notifications not configured)
type Nop struct{}

func (Nop) TradeAlert(*logger.TradeRecord, float64)   {}
func (Nop) ErrorAlert(string, string, string, string) {}
func (Nop) DailySummary(string, *logger.DailyStats)   {}

// Telegram sends alerts through the Telegram Bot API
type Telegram struct {
	apiURL string
	chatID string
	client *http.Client
}

// NewTelegram creates a Telegram notifier. Returns Nop when the token or
// chat ID is missing so callers never need a nil check.
func NewTelegram(botToken, chatID string) Notifier {
	if botToken == "" || chatID == "" {
		log.Printf("ℹ️  Telegram not configured, alerts disabled")
		return Nop{}
	}
	return &Telegram{
		apiURL: fmt.Sprintf("https://api.telegram.org/bot%s", botToken),
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// send posts one message; best-effort, errors are logged only
func (t *Telegram) send(text string) {
	payload := telegramMessage{
		ChatID:                t.chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal Telegram payload: %v", err)
		return
	}

	resp, err := t.client.Post(t.apiURL+"/sendMessage", "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Printf("⚠️  Failed to send Telegram message: %v", err)
		return
	}
	defer resp.Body.Close()

	var tr telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		log.Printf("⚠️  Failed to decode Telegram response: %v", err)
		return
	}
	if !tr.OK {
		log.Printf("⚠️  Telegram API error: %s", tr.Description)
	}
}

// TradeAlert announces an executed order
func (t *Telegram) TradeAlert(rec *logger.TradeRecord, holdingDays float64) {
	var msg string
	now := rec.Timestamp.Format("2006-01-02 15:04:05")

	if rec.Action == logger.ActionBuy {
		msg = fmt.Sprintf(
			"🟢 Buy order executed\n\n"+
				"📊 Instrument: %s (%s)\n"+
				"💰 Price: %.0f\n"+
				"📈 Quantity: %d\n"+
				"💵 Amount: %.0f\n"+
				"🎯 Tranche: %s\n"+
				"📅 Time: %s\n",
			rec.StockName, rec.StockCode, rec.Price, rec.Quantity, rec.Amount, rec.Tranche, now)
		if rec.AvgPrice > 0 && rec.TotalQuantity > 0 {
			msg += fmt.Sprintf("\n💡 Average price: %.0f\n📊 Total held: %d", rec.AvgPrice, rec.TotalQuantity)
		}
	} else {
		title := "Sell order executed"
		emoji := "🔴"
		if rec.ProfitLoss < 0 {
			emoji = "⚠️"
		}
		msg = fmt.Sprintf(
			"%s %s\n\n"+
				"📊 Instrument: %s (%s)\n"+
				"💰 Price: %.0f\n"+
				"📉 Quantity: %d\n"+
				"💵 Amount: %.0f\n"+
				"🎯 Reason: %s\n"+
				"📅 Time: %s\n",
			emoji, title, rec.StockName, rec.StockCode, rec.Price, rec.Quantity, rec.Amount, rec.Reason, now)

		profitEmoji := "💰"
		if rec.ProfitLoss < 0 {
			profitEmoji = "💸"
		}
		msg += fmt.Sprintf("\n%s P&L: %+.0f (%+.2f%%)\n", profitEmoji, rec.ProfitLoss, rec.ProfitLossPercent)

		if holdingDays > 0 {
			if holdingDays < 1 {
				msg += fmt.Sprintf("⏰ Held: %.1f hours\n", holdingDays*24)
			} else {
				msg += fmt.Sprintf("⏰ Held: %.1f days\n", holdingDays)
			}
		}
	}
	t.send(msg)
}

// ErrorAlert announces an unexpected failure
func (t *Telegram) ErrorAlert(errorType, code, name, message string) {
	t.send(fmt.Sprintf(
		"⚠️ System error\n\n"+
			"🔸 Type: %s\n"+
			"📊 Instrument: %s (%s)\n"+
			"🔸 Detail: %s\n"+
			"📅 Time: %s",
		errorType, name, code, message, time.Now().Format("2006-01-02 15:04:05")))
}

// DailySummary announces the close-of-session roll-up
func (t *Telegram) DailySummary(mode string, stats *logger.DailyStats) {
	if stats == nil || (stats.BuyCount == 0 && stats.SellCount == 0) {
		return
	}
	t.send(fmt.Sprintf(
		"🌅 Session close - daily summary\n\n"+
			"📅 Date: %s\n"+
			"🏦 Account: %s\n\n"+
			"📊 Today's trades:\n"+
			"  ✅ Buys: %d\n"+
			"  ✅ Sells: %d\n\n"+
			"💰 Today's result:\n"+
			"  📈 Realized P&L: %+.0f\n"+
			"  💵 Buy turnover: %.0f\n\n"+
			"🏆 Performance:\n"+
			"  📊 Win rate: %.1f%% (%d/%d)",
		stats.Date, mode, stats.BuyCount, stats.SellCount,
		stats.RealizedProfit, stats.TotalBuyAmount,
		stats.WinRate, stats.WinCount, stats.SellCount))
}
