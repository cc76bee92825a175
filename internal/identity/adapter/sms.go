package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/authkit/internal/domain"
	"github.com/aelexs/authkit/internal/identity"
)

// DefaultMessageFormat renders the SMS body. The single verb is the code.
const DefaultMessageFormat = "Your verification code is: %s"

// snsPublisher is the subset of the SNS API the provider needs.
// *sns.Client satisfies it.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var (
	_ identity.SMSProvider = (*SNSSMSProvider)(nil)
	_ identity.SMSProvider = (*LogSMSProvider)(nil)
	_ identity.SMSProvider = (*OutboxSMSProvider)(nil)
)

// SNSConfig configures an SNSSMSProvider.
type SNSConfig struct {
	// SenderID is shown as the sender where carriers support it. Optional.
	SenderID string
	// MessageFormat overrides DefaultMessageFormat.
	MessageFormat string
}

// SNSSMSProvider delivers verification codes as transactional SMS through
// Amazon SNS.
type SNSSMSProvider struct {
	client snsPublisher
	cfg    SNSConfig
}

// NewSNSSMSProvider creates an SNSSMSProvider backed by client.
func NewSNSSMSProvider(client snsPublisher, cfg SNSConfig) *SNSSMSProvider {
	if cfg.MessageFormat == "" {
		cfg.MessageFormat = DefaultMessageFormat
	}
	return &SNSSMSProvider{client: client, cfg: cfg}
}

// SendCode publishes the code to phone.
func (p *SNSSMSProvider) SendCode(ctx context.Context, phone, code string) error {
	ctx, span := tracer.Start(ctx, "sns.publish_sms")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.system", "aws_sns"))

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if p.cfg.SenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(p.cfg.SenderID)}
	}

	_, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(fmt.Sprintf(p.cfg.MessageFormat, code)),
		MessageAttributes: attrs,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("sns sms: send code to %s: %w", domain.MaskPhone(phone), err)
	}

	return nil
}

// LogSMSProvider writes codes to the log instead of sending them. For local
// development only.
type LogSMSProvider struct {
	logger *slog.Logger
}

// NewLogSMSProvider creates a LogSMSProvider writing to logger.
func NewLogSMSProvider(logger *slog.Logger) *LogSMSProvider {
	return &LogSMSProvider{logger: logger}
}

// SendCode logs the delivery with the number masked.
func (p *LogSMSProvider) SendCode(ctx context.Context, phone, code string) error {
	// Codes are printed in clear. Development only.
	p.logger.InfoContext(ctx, "verification code delivery (log-only)",
		slog.String("phone", domain.MaskPhone(phone)),
		slog.String("code", code),
	)
	return nil
}

// Message is one delivered verification code.
type Message struct {
	Phone string
	Code  string
}

// OutboxSMSProvider hands codes to an in-process reader instead of a
// carrier. Scripted sign-ins read codes back with Next.
type OutboxSMSProvider struct {
	messages chan Message
}

// NewOutboxSMSProvider creates an outbox holding up to capacity undelivered
// messages.
func NewOutboxSMSProvider(capacity int) *OutboxSMSProvider {
	return &OutboxSMSProvider{messages: make(chan Message, capacity)}
}

// SendCode queues the code. It fails with domain.ErrUnavailable when the
// outbox is full.
func (p *OutboxSMSProvider) SendCode(ctx context.Context, phone, code string) error {
	select {
	case p.messages <- Message{Phone: phone, Code: code}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("outbox full: %w", domain.ErrUnavailable)
	}
}

// Next blocks until a message is queued or ctx is done.
func (p *OutboxSMSProvider) Next(ctx context.Context) (Message, error) {
	select {
	case m := <-p.messages:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}
