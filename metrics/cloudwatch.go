// Package metrics carries run counters and the optional run-completion
// signal to CloudWatch.
package metrics

import (
	"context"
	"fmt"

	"alertrelay/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"go.uber.org/zap"
)

// CloudWatchSink emits the once-per-run completion metric. Emission is
// best effort; callers log and swallow its errors.
type CloudWatchSink struct {
	client    cloudwatchiface.CloudWatchAPI
	namespace string
	logger    *zap.SugaredLogger
}

// NewCloudWatchSink builds the sink using ambient AWS credentials.
func NewCloudWatchSink(cfg *config.Config, logger *zap.SugaredLogger) (*CloudWatchSink, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Secrets.AWS.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &CloudWatchSink{
		client:    cloudwatch.New(sess),
		namespace: cfg.MetricsNamespace,
		logger:    logger,
	}, nil
}

// EmitRunComplete reports one completed alert-handler run.
func (s *CloudWatchSink) EmitRunComplete(ctx context.Context) error {
	_, err := s.client.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(s.namespace),
		MetricData: []*cloudwatch.MetricDatum{
			{
				MetricName: aws.String("Run"),
				Value:      aws.Float64(1),
				Dimensions: []*cloudwatch.Dimension{
					{
						Name:  aws.String("Component"),
						Value: aws.String("Alert Handler"),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to emit run metric: %w", err)
	}

	s.logger.Debug("Emitted run-completion metric")
	return nil
}
