// Package aws builds the SES and SNS clients used for digest delivery and run alerts.
package aws

import (
	"context"
	"fmt"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/sneurgaonkar/sales-ai-agents/internal/common/config"
	"github.com/sneurgaonkar/sales-ai-agents/internal/common/errors"
)

// Clients shares one resolved AWS config between the services. Service clients are created on first use.
type Clients struct {
	cfg awssdk.Config

	sesOnce sync.Once
	ses     *ses.Client
	snsOnce sync.Once
	sns     *sns.Client
}

// New resolves credentials through the default chain (env, shared config, instance role).
func New(ctx context.Context, settings config.AWSConfig) (*Clients, error) {
	if settings.Region == "" {
		return nil, errors.NewConfigInvalidError("integrations.aws.region is empty")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(settings.Region))
	if err != nil {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("load aws config: %v", err))
	}
	return FromConfig(cfg), nil
}

func FromConfig(cfg awssdk.Config) *Clients {
	return &Clients{cfg: cfg}
}

func (c *Clients) Region() string { return c.cfg.Region }

func (c *Clients) SES() *ses.Client {
	c.sesOnce.Do(func() { c.ses = ses.NewFromConfig(c.cfg) })
	return c.ses
}

func (c *Clients) SNS() *sns.Client {
	c.snsOnce.Do(func() { c.sns = sns.NewFromConfig(c.cfg) })
	return c.sns
}
