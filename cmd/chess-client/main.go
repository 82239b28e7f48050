package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/ReaperOAK/KCAdashboard-sub001/internal/config"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/draw"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/engine"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/gamesvc"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/identity"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/notify"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/obslog"
	"github.com/ReaperOAK/KCAdashboard-sub001/internal/session"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	user, err := identity.Load(cfg.IdentityFile)
	if err != nil {
		obslog.L().Warn("identity_load_failed", zap.Error(err))
	}

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.AuthToken != "" {
			h["Authorization"] = "Bearer " + cfg.AuthToken
		}
		return h
	}
	client := gamesvc.NewClient(cfg.GameBaseURL,
		gamesvc.WithHeaderProvider(headers),
		gamesvc.WithRetry(3),
	)

	eng, err := engine.New(engine.Config{
		Backend:            engine.Backend(cfg.EngineBackend),
		SkillLevel:         cfg.EngineSkillLevel,
		BinaryPath:         cfg.EngineBinaryPath,
		FallbackBinaryPath: cfg.EngineFallbackPath,
		AnalysisBaseURL:    cfg.AnalysisBaseURL,
	})
	if err != nil {
		log.Fatalf("engine init error: %v", err)
	}
	defer eng.Terminate()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionID := os.Getenv("SESSION_ID")
	if len(os.Args) > 1 {
		sessionID = os.Args[1]
	}
	if sessionID == "" {
		// No open session: watch outgoing challenges until one is accepted.
		accepted := make(chan string, 1)
		watcher := session.NewChallengeWatcher(client,
			time.Duration(cfg.ChallengePollIntervalMS)*time.Millisecond,
			func(id string) {
				select {
				case accepted <- id:
				default:
				}
			})
		watcher.Start(ctx)
		obslog.L().Info("waiting_for_challenge")
		select {
		case sessionID = <-accepted:
			watcher.Stop()
		case <-ctx.Done():
			watcher.Stop()
			return
		}
	}

	runSession(ctx, cfg, client, eng, user, sessionID)
}

func runSession(ctx context.Context, cfg *appcfg.AppConfig, client *gamesvc.Client, eng engine.Handle, user identity.User, sessionID string) {
	done := make(chan struct{}, 1)
	opts := []session.Option{
		session.WithPollInterval(time.Duration(cfg.PollIntervalMS) * time.Millisecond),
		session.WithTurnBudget(time.Duration(cfg.TurnBudgetSec) * time.Second),
		session.WithFailureThreshold(cfg.FailureThreshold),
		session.WithTerminalCallback(func(reason, result string) {
			obslog.L().Info("game_over", zap.String("reason", reason), zap.String("result", result))
		}),
		session.WithTeardownCallback(func() {
			select {
			case done <- struct{}{}:
			default:
			}
		}),
		session.WithConnectivityCallback(func(err error) {
			obslog.L().Error("connectivity_lost", zap.Error(err))
			select {
			case done <- struct{}{}:
			default:
			}
		}),
	}
	if os.Getenv("VS_ENGINE") == "1" {
		opts = append(opts, session.WithEngine(eng))
	}
	ctrl := session.NewController(client, user, opts...)

	if sessions, err := ctrl.ActiveSessions(ctx); err == nil {
		for _, s := range sessions {
			obslog.L().Info("active_session",
				zap.String("session_id", s.ID),
				zap.String("opponent", s.Opponent),
				zap.String("your_color", string(s.YourColor)),
			)
		}
	}

	if err := ctrl.Open(ctx, sessionID); err != nil {
		log.Fatalf("open session error: %v", err)
	}
	defer ctrl.Close()

	var seen draw.SeenStore
	if cfg.RedisURL != "" {
		if s, err := draw.NewRedisSeen(cfg.RedisURL); err != nil {
			obslog.L().Warn("redis_seen_unavailable", zap.Error(err))
		} else {
			seen = s
		}
	}
	drawMgr := draw.NewManager(client, notify.Log{}, seen, sessionID,
		draw.WithPollInterval(time.Duration(cfg.DrawPollIntervalMS)*time.Millisecond),
		draw.WithResolvedCallback(func(result string) {
			ctrl.FinishWithResult("draw-agreed", result)
		}),
	)
	drawMgr.Start(ctx)
	defer drawMgr.Close()

	select {
	case <-ctx.Done():
	case <-done:
	}
}
