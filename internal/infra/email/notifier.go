package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, videoID, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	subject := fmt.Sprintf("Your video could not be published [%s]", videoID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"We could not finish processing your uploaded video.\r\n\r\n"+
			"Video: %s\r\n"+
			"Reason: %s\r\n\r\n"+
			"You can try uploading it again, or contact support if the problem persists.\r\n",
		videoID, errorMsg,
	)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, userEmail, subject, body,
	)

	if err := smtp.SendMail(addr, nil, n.from, []string{userEmail}, []byte(msg)); err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", userEmail),
			zap.String("video_id", videoID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", userEmail),
		zap.String("video_id", videoID),
	)
	return nil
}
