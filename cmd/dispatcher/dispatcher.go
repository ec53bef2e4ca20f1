package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	awsSession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatekeeperhq/gatekeeper/platform/metrics"
	platformSNS "github.com/gatekeeperhq/gatekeeper/platform/sns"
	"github.com/gatekeeperhq/gatekeeper/service/invite"
)

// Logging and telemetry identifiers.
const (
	component       = "dispatcher"
	namespaceSource = "source"
	sourceService   = "sqs"
	subsystemQueue  = "queue"
)

// Buildtime vars.
var (
	revision = "0000000-dev"
)

func main() {
	var (
		begin = time.Now()

		awsID         = flag.String("aws.id", "", "Identifier for AWS requests")
		awsRegion     = flag.String("aws.region", "us-east-1", "AWS region to operate in")
		awsSecret     = flag.String("aws.secret", "", "Identification secret for AWS requests")
		snsTopic      = flag.String("sns.topic", "", "Topic ARN resident pushes are published to")
		telemetryAddr = flag.String("telemetry.addr", ":9001", "Address to expose telemetry on")
	)
	flag.Parse()

	logger := log.With(
		log.NewJSONLogger(os.Stdout),
		"caller", log.Caller(3),
		"component", component,
		"revision", revision,
	)

	hostname, err := os.Hostname()
	if err != nil {
		_ = logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}

	logger = log.With(logger, "host", hostname)

	// Setup instrumentation.
	go func(addr string) {
		_ = logger.Log(
			"duration_ns", time.Since(begin).Nanoseconds(),
			"lifecycle", "start",
			"listen", addr,
			"sub", "telemetry",
		)

		http.Handle("/metrics", promhttp.Handler())

		err := http.ListenAndServe(addr, nil)
		if err != nil {
			_ = logger.Log("err", err, "lifecycle", "abort", "sub", "telemetry")
			os.Exit(1)
		}
	}(*telemetryAddr)

	sourceFieldKeys := []string{
		metrics.FieldComponent,
		metrics.FieldMethod,
		metrics.FieldNamespace,
		metrics.FieldSource,
		metrics.FieldStore,
	}

	sourceErrCount, sourceOpCount, sourceOpLatency := metrics.KeyMetrics(
		namespaceSource,
		sourceFieldKeys...,
	)

	sourceQueueLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceSource,
			Subsystem: subsystemQueue,
			Name:      "latency_seconds",
			Help:      "Distribution of message queue latency in seconds",
			Buckets:   metrics.BucketsQueue,
		},
		sourceFieldKeys,
	)
	prometheus.MustRegister(sourceQueueLatency)

	// Setup clients.
	var (
		aSession = awsSession.New(&aws.Config{
			Credentials: credentials.NewStaticCredentials(*awsID, *awsSecret, ""),
			Region:      aws.String(*awsRegion),
		})
		snsAPI = sns.New(aSession)
		sqsAPI = sqs.New(aSession)
	)

	// Setup sources.
	inviteSource, err := invite.SQSSource(sqsAPI)
	if err != nil {
		_ = logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}
	inviteSource = invite.InstrumentSourceMiddleware(
		component,
		sourceService,
		sourceErrCount,
		sourceOpCount,
		sourceOpLatency,
		sourceQueueLatency,
	)(inviteSource)
	inviteSource = invite.LogSourceMiddleware(sourceService, logger)(inviteSource)

	push := platformSNS.Push(snsAPI, *snsTopic)

	_ = logger.Log(
		"duration_ns", time.Since(begin).Nanoseconds(),
		"lifecycle", "start",
		"sub", "worker",
	)

	for {
		change, err := inviteSource.Consume()
		if err != nil {
			if invite.IsEmptySource(err) {
				continue
			}

			_ = logger.Log("err", err, "lifecycle", "abort")
			os.Exit(1)
		}

		message := pushMessage(change)
		if message == "" {
			if err := inviteSource.Ack(change.AckID); err != nil {
				_ = logger.Log("err", err, "lifecycle", "abort")
				os.Exit(1)
			}

			continue
		}

		err = push(change.New.CreatedBy, titleGateActivity, message)
		if err != nil {
			_ = logger.Log(
				"err", err,
				"invite_id", change.New.ID,
				"lifecycle", "run",
				"namespace", change.Namespace,
			)
		}

		if err := inviteSource.Ack(change.AckID); err != nil {
			_ = logger.Log("err", err, "lifecycle", "abort")
			os.Exit(1)
		}
	}
}
