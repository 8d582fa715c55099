package mail

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"os"
	"strconv"
	"time"

	"github.com/planora/booking-service/logger"
	gomail "gopkg.in/gomail.v2"
)

const completionOTPTemplate = "templates/email/completion_otp.html"

// sendEmail renders an HTML template and delivers it over SMTP.
func sendEmail(toEmail, subject, templatePath string, data interface{}) error {
	mailer := gomail.NewMessage()
	mailer.SetHeader("From", os.Getenv("FROM_EMAIL"))
	mailer.SetHeader("To", toEmail)
	mailer.SetHeader("Subject", subject)

	t, err := template.ParseFiles(templatePath)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to parse email template %s: %v", templatePath, err)
		return fmt.Errorf("failed to parse email template: %w", err)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		logger.ErrorLogger.Errorf("Failed to execute email template %s: %v", templatePath, err)
		return fmt.Errorf("failed to execute email template: %w", err)
	}

	mailer.SetBody("text/html", body.String())

	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		logger.ErrorLogger.Errorf("Invalid SMTP port: %v", err)
		return fmt.Errorf("invalid SMTP port: %w", err)
	}

	smtpHost := os.Getenv("SMTP_HOST")
	smtpUsername := os.Getenv("SMTP_USERNAME")
	smtpPassword := os.Getenv("SMTP_PASSWORD")

	dialer := gomail.NewDialer(smtpHost, port, smtpUsername, smtpPassword)
	dialer.TLSConfig = &tls.Config{
		InsecureSkipVerify: false,
		ServerName:         smtpHost,
	}

	if err := dialer.DialAndSend(mailer); err != nil {
		logger.ErrorLogger.Errorf("Failed to send email to %s: %v", toEmail, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.InfoLogger.Infof("Email sent to %s", toEmail)
	return nil
}

// SendCompletionOTP mails the service-completion code to the booking owner.
// The code expires ten minutes after issue.
func SendCompletionOTP(email, bookingID, otp string) error {
	logger.InfoLogger.Infof("Sending completion OTP for booking %s to %s", bookingID, email)
	data := struct {
		BookingID string
		OTP       string
		Year      int
	}{
		BookingID: bookingID,
		OTP:       otp,
		Year:      time.Now().Year(),
	}
	return sendEmail(email, "Your Service Completion Code", completionOTPTemplate, data)
}
