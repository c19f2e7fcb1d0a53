// Demo server: seeds a small class, simulates portal activity, and serves
// the full API on :8080. Try:
//
//	curl -X POST 'localhost:8080/api/users/anna/xp?action=comment_posted'
//	curl 'localhost:8080/api/leaderboard'
//	websocat ws://localhost:8080/api/ws
package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	mem "scuolakit/adapters/memory"
	"scuolakit/api/httpapi"
	"scuolakit/core"
	"scuolakit/engine"
	"scuolakit/leaderboard"
	"scuolakit/portal"
	"scuolakit/realtime"
	"scuolakit/stats"
)

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	storage := mem.New()
	class := []core.User{
		{ID: "anna", DisplayName: "Anna Bianchi"},
		{ID: "bruno", DisplayName: "Bruno Conti"},
		{ID: "carla", DisplayName: "Carla De Luca"},
		{ID: "dario", DisplayName: "Dario Esposito"},
	}
	for _, u := range class {
		storage.PutUser(u)
	}

	hub := realtime.NewHub()
	board := leaderboard.NewSkipList()
	metrics := stats.NewPortalMetrics()
	svc := portal.New(
		portal.WithStorage(storage),
		portal.WithRealtime(hub),
		portal.WithLeaderboard(board),
		portal.WithStats(metrics),
		portal.WithDispatchMode(engine.DispatchAsync),
	)
	defer svc.Close()

	go simulate(svc, storage, class)

	mux := http.NewServeMux()
	mux.Handle("/api/", httpapi.NewMux(svc, hub, board, httpapi.Options{
		PathPrefix:      "/api",
		AllowCORSOrigin: "*",
	}))
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = metrics.Snapshot(10).WriteJSON(w)
	})

	slog.Info("starting demo server on :8080")

	if err := http.ListenAndServe(":8080", mux); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

// simulate drives portal activity: comments, likes, material traffic and the
// occasional quiz, with a badge evaluation pass after each action.
func simulate(svc *engine.Service, storage *mem.Store, class []core.User) {
	ctx := context.Background()
	actions := []core.Action{
		core.ActionCommentPosted,
		core.ActionLikeGiven,
		core.ActionMaterialUploaded,
		core.ActionMaterialDownloaded,
	}
	actionReqs := map[core.Action]core.RequirementType{
		core.ActionCommentPosted:      core.ReqCommentsPosted,
		core.ActionLikeGiven:          core.ReqLikesGiven,
		core.ActionMaterialUploaded:   core.ReqMaterialsUploaded,
		core.ActionMaterialDownloaded: core.ReqMaterialsDownloaded,
	}

	for range time.Tick(2 * time.Second) {
		user := class[rand.Intn(len(class))].ID

		if rand.Intn(5) == 0 {
			percentage := int64(rand.Intn(101))
			award, err := svc.AwardQuizCompletion(ctx, user, percentage)
			if err != nil {
				slog.Error("quiz award failed", "user", user, "error", err)
				continue
			}
			storage.RecordActivity(ctx, user, core.ReqQuizzesCompleted, 1)
			slog.Info("quiz completed", "user", user, "percentage", percentage, "points", award.Points)
		} else {
			action := actions[rand.Intn(len(actions))]
			award, err := svc.AwardAction(ctx, user, action)
			if err != nil {
				slog.Error("action award failed", "user", user, "action", action, "error", err)
				continue
			}
			storage.RecordActivity(ctx, user, actionReqs[action], 1)
			if award.LeveledUp {
				slog.Info("level up", "user", user, "level", award.NewLevel)
			}
		}

		ev, err := svc.EvaluateBadges(ctx, user)
		if err != nil {
			slog.Error("badge evaluation failed", "user", user, "error", err)
			continue
		}
		for _, badge := range ev.Granted {
			slog.Info("badge earned", "user", user, "badge", badge)
		}
	}
}
