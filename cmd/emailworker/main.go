package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"avatarmaxapi/dbhelper"
	"avatarmaxapi/emailqueue"
	"avatarmaxapi/services"

	"github.com/getsentry/sentry-go"
)

// Standalone batch runner for the email queue, for cron or manual drains.
// Exits non-zero when any request in the batch failed so the invoking
// scheduler can alert on it.
func main() {
	defaultBatchSize, err := strconv.Atoi(services.GetEnv("EMAIL_BATCH_SIZE", "50"))
	if err != nil || defaultBatchSize <= 0 {
		defaultBatchSize = 50
	}
	batchSize := flag.Int("batch-size", defaultBatchSize, "maximum number of email requests to process in one run")
	dryRun := flag.Bool("dry-run", false, "report what would be sent without sending or updating rows")
	flag.Parse()

	if services.GetEnv("ENABLE_EMAIL_FEATURE", "true") != "true" {
		fmt.Println("[Email worker] Email feature is disabled, nothing to do")
		return
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:         os.Getenv("SENTRY_DSN"),
		Environment: services.GetEnv("ENV", "local"),
		Release:     "avatarmax@1.0.0",
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	db := dbhelper.SetupDB()
	awsService := &services.AWSService{}
	if err := awsService.InitPresignClient(context.Background()); err != nil {
		log.Fatal("[Email worker] Failed to initialize AWS provider: S3")
	}

	processor := emailqueue.QueueProcessor{
		Repo:       emailqueue.NewRepository(db),
		Mailer:     services.NewBrevoMailer(),
		AWSService: awsService,
		BucketName: services.GetEnv("R2_BUCKET_NAME", ""),
		BatchSize:  *batchSize,
		DryRun:     *dryRun,
	}

	summary, err := processor.ProcessQueue(context.Background())
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("[Email worker] Sweep aborted: %v", err)
	}

	fmt.Printf("[Email worker] %v processed, %v sent, %v failed\n", summary.Processed, summary.Success, summary.Failed)
	if summary.Failed > 0 {
		os.Exit(1)
	}
}
