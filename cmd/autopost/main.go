package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"autopost/internal/app"
	"autopost/pkg/systemd"
)

func main() {
	var (
		cfgPath   = flag.String("config", "./config.yaml", "path to config file (yaml or json)")
		daemonize = flag.Bool("daemon", false, "run the scheduling loop without the interactive banner")
		postNow   = flag.Bool("post", false, "publish one post immediately and exit")
		testPost  = flag.Bool("test", false, "publish a canned test post and exit")
		status    = flag.Bool("status", false, "print poster status and exit")
	)
	flag.Parse()

	// Local setups keep API keys in .env instead of the config file.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(*cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	switch {
	case *testPost:
		fmt.Println("Testing API connection...")
		if !a.TestConnection(ctx) {
			fmt.Println("❌ API connection failed")
			os.Exit(1)
		}
		fmt.Println("✅ API connection successful!")
		fmt.Println("Making test post...")
		if err := a.TestPost(ctx); err != nil {
			fmt.Println("❌ Test post failed:", err)
			os.Exit(1)
		}
		fmt.Println("✅ Test post successful!")

	case *postNow:
		fmt.Println("Making real post on the spot...")
		if err := a.PostOnce(ctx); err != nil {
			fmt.Println("❌ Post failed:", err)
			os.Exit(1)
		}
		fmt.Println("✅ Post successful!")

	case *status:
		rep, err := a.Status(ctx)
		if err != nil {
			fmt.Println("❌ Status unavailable:", err)
			os.Exit(1)
		}
		printStatus(rep)

	default:
		run(ctx, a, *daemonize)
	}
}

func run(ctx context.Context, a *app.App, daemonized bool) {
	if !daemonized {
		fmt.Println("🚀 Starting Automated Daily Poster...")
		fmt.Println("  • One fixed post per day plus opportunistic posts")
		fmt.Println("  • Content from public JSON APIs with local fallback")
		fmt.Println("  • Live config reload")
		fmt.Print("\nPress Ctrl+C to stop\n\n")
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	systemd.NotifyReady()
	systemd.NotifyStatus("scheduling posts")

	<-a.Done()
	systemd.NotifyStopping()

	reason := app.StopSignal
	if err := a.Err(); err != nil && ctx.Err() == nil {
		fmt.Println("fatal:", err)
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		os.Exit(1)
	}
	if !daemonized {
		fmt.Println("👋 Stopped. Goodbye!")
	}
}

func printStatus(rep app.StatusReport) {
	fmt.Println("\n🤖 Poster Status:")
	fmt.Println("  Running:", yesNo(rep.Running))
	fmt.Println("  State:", rep.State)
	fmt.Println("  Posts Today:", rep.PostsToday)
	fmt.Println("  Fixed Posts:", rep.FixedToday)
	fmt.Println("  Opportunistic Posts:", rep.OpportunisticToday)

	last := "never"
	if rep.HasLastPost {
		last = rep.LastPost.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Println("  Last Post:", last)

	fmt.Println("  Pending Jobs:", rep.PendingJobs)
	if !rep.NextFire.IsZero() {
		fmt.Println("  Next Fire:", rep.NextFire.Local().Format("2006-01-02 15:04:05"))
	}
	for _, j := range rep.Jobs {
		fmt.Printf("    %s  %s at %s\n", j.Tag, j.Kind, j.FiresAt.Local().Format("15:04"))
	}

	if len(rep.Recent) > 0 {
		fmt.Println("  Recent:")
		for _, r := range rep.Recent {
			fmt.Printf("    %s  %-13s %-7s %s\n",
				r.At.Local().Format("01-02 15:04"), r.Kind, r.Status, r.Source)
		}
	}
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
