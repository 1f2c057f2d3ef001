package sending

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/dormant-leads/internal/config"
	"github.com/ignite/dormant-leads/internal/domain"
	"github.com/ignite/dormant-leads/internal/pkg/logger"
)

// sesAPI is the subset of the SES v2 client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESDeliverer sends email nudges via AWS SES.
type SESDeliverer struct {
	client sesAPI
	from   string
}

// NewSESDeliverer builds an SES client from static credentials when they
// are configured, or from the default AWS credential chain otherwise.
func NewSESDeliverer(ctx context.Context, cfg config.SESConfig) (*SESDeliverer, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESDeliverer(sesv2.NewFromConfig(awsCfg), cfg.FromName, cfg.FromEmail), nil
}

func newSESDeliverer(client sesAPI, fromName, fromEmail string) *SESDeliverer {
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}
	return &SESDeliverer{client: client, from: from}
}

// Deliver implements Deliverer.
func (s *SESDeliverer) Deliver(ctx context.Context, msg *domain.Message) (*domain.DeliveryResult, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Address}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
			{Name: aws.String("variant"), Value: aws.String(variantTag(msg.Variant))},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		logger.Warn("ses send failed", "email", msg.Address, "lead_id", msg.LeadID, "error", err.Error())
		return &domain.DeliveryResult{Error: err.Error()}, nil
	}

	res := &domain.DeliveryResult{Delivered: true}
	if out.MessageId != nil {
		res.ProviderID = *out.MessageId
	}
	return res, nil
}

// SES tag values must be non-empty.
func variantTag(v string) string {
	if v == "" {
		return "default"
	}
	return v
}
