package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, send: smtp.SendMail, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, notice port.FailureNotice) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := buildFailureMessage(n.from, notice)

	if err := n.send(addr, nil, n.from, []string{notice.UserEmail}, msg); err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", notice.UserEmail),
			zap.String("job_id", notice.JobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", notice.UserEmail),
		zap.String("job_id", notice.JobID),
	)
	return nil
}

func buildFailureMessage(from string, notice port.FailureNotice) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", notice.UserEmail)
	fmt.Fprintf(&b, "Subject: FIAP X - Frame sampling failed [Job %s]\r\n\r\n", notice.JobID)
	b.WriteString("Hello,\r\n\r\n")
	b.WriteString("Frame sampling for your video could not be completed.\r\n\r\n")
	fmt.Fprintf(&b, "Job ID: %s\r\n", notice.JobID)
	fmt.Fprintf(&b, "Video: %s\r\n", notice.VideoKey)
	fmt.Fprintf(&b, "Reason: %s\r\n", notice.Reason)
	fmt.Fprintf(&b, "Error: %s\r\n\r\n", notice.Message)
	b.WriteString("Frames saved before the failure were not published.\r\n")
	b.WriteString("Please upload the video again or contact support.\r\n\r\n")
	b.WriteString("-- FIAP X Frame Sampler")
	return []byte(b.String())
}
