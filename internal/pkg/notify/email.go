// Package notify delivers rank alert email via SMTP.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/config"
	"github.com/jibraancraig/tpt-seller-hub-sub000/internal/rank"
)

// EmailNotifier implements rank.Notifier over SMTP. Missing SMTP
// config downgrades sends to a logged no-op so demo setups keep
// working without mail credentials.
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// NotifyRankChange sends one rank alert email.
func (n *EmailNotifier) NotifyRankChange(ctx context.Context, alert rank.RankAlert) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip rank alert",
			slog.Uint64("keyword_id", uint64(alert.KeywordID)))
		return nil
	}
	if strings.TrimSpace(alert.Email) == "" {
		n.logger.Warn("alert recipient empty, skip rank alert",
			slog.Uint64("keyword_id", uint64(alert.KeywordID)))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", alert.Email)
	m.SetHeader("Subject", subjectFor(alert))
	m.SetBody("text/html", buildHTMLBody(alert))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("rank alert email sent",
		slog.String("to", alert.Email),
		slog.String("direction", alert.Direction),
		slog.String("phrase", alert.Phrase))
	return nil
}

func subjectFor(alert rank.RankAlert) string {
	if alert.Direction == "improvement" {
		return fmt.Sprintf("[SellerHub] 📈 %q moved up to #%d", alert.Phrase, alert.NewRank)
	}
	return fmt.Sprintf("[SellerHub] 📉 %q dropped to #%d", alert.Phrase, alert.NewRank)
}

func buildHTMLBody(alert rank.RankAlert) string {
	accent := "#22c55e"
	headline := "Your listing climbed the results"
	if alert.Direction == "decline" {
		accent = "#ef4444"
		headline = "Your listing lost ground"
	}

	template := `
<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; }
  .rank { font-size: 26px; font-weight: bold; color: %s; margin: 8px 0 12px; }
  .title { font-size: 16px; margin-bottom: 16px; }
  .cta { display: inline-block; padding: 12px 20px; background: #0f172a; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">[SellerHub] %s</div>
    <div class="content">
      <div class="rank">#%d &rarr; #%d</div>
      <div class="title">%s</div>
      <div style="text-align:center; margin-bottom: 12px;">
        <a class="cta" href="%s" target="_blank">View listing</a>
      </div>
      <div class="footer">Keyword: %s</div>
    </div>
  </div>
</body>
</html>`

	return fmt.Sprintf(template, accent, headline, alert.OldRank, alert.NewRank, alert.ProductTitle, alert.ProductURL, alert.Phrase)
}
