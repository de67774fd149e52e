package main

import (
	"context"
	"log"
	"os"

	"avatarmaxapi/dbhelper"
	"avatarmaxapi/services"
	"avatarmaxapi/tasks"

	"github.com/hibiken/asynq"
)

func runScheduler() {

	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}, &asynq.SchedulerOpts{

		LogLevel: asynq.InfoLevel,
	})

	sweepTask, err := tasks.NewEmailSweepTask()
	if err != nil {
		log.Fatalf("Failed to build email sweep task: %v", err)
	}

	scheduled := []struct {
		cron string
		task *asynq.Task
		desc string
	}{
		{
			cron: "*/5 * * * *",
			task: sweepTask,
			desc: "Email queue sweep",
		},
	}

	for _, t := range scheduled {
		entryID, err := scheduler.Register(t.cron, t.task, asynq.Queue("email"))
		if err != nil {
			log.Fatalf("Failed to register task '%s': %v", t.desc, err)
		}
		log.Printf("Registered task '%s' with ID: %s, cron: %s", t.desc, entryID, t.cron)
	}

	log.Println("Starting scheduler...")
	if err := scheduler.Run(); err != nil {
		log.Fatalf("Scheduler failed: %v", err)
	}
}

func main() {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			"generate": 7,
			"email":    3,
		}},
	)
	awsService := &services.AWSService{}
	err := awsService.InitPresignClient(context.Background())
	if err != nil {
		log.Fatal("[Queue] Failed to initialize AWS provider: S3")
	}
	generator := services.NewFalImageGenerator()
	scorer := services.GoogleStyleScorer{}
	mailer := services.NewBrevoMailer()

	mux := asynq.NewServeMux()
	db := dbhelper.SetupDB()
	mux.HandleFunc("generate:avatar", func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleAvatarGenerationTask(ctx, t, db, generator, scorer, awsService)
	})
	mux.HandleFunc("email:sweep", func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleEmailSweepTask(ctx, t, db, mailer, awsService)
	})

	go runScheduler()
	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}
