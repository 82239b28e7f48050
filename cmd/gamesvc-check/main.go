package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/ReaperOAK/KCAdashboard-sub001/internal/gamesvc"
)

// Connectivity smoke check: lists active sessions, then, if SESSION_ID is
// set, fetches its detail and draw-offer list so a misconfigured base URL
// or token shows up before the client is started.
func main() {
	baseURL := os.Getenv("GAME_BASE_URL")
	token := os.Getenv("AUTH_TOKEN")
	sessionID := os.Getenv("SESSION_ID")

	if baseURL == "" {
		log.Fatal("GAME_BASE_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if token != "" {
			m["Authorization"] = "Bearer " + token
		}
		return m
	}

	client := gamesvc.NewClient(baseURL,
		gamesvc.WithHeaderProvider(headers),
		gamesvc.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	list, err := client.ListSessions(ctx, "active")
	if err != nil {
		log.Fatalf("list sessions error: %v", err)
	}
	log.Printf("list sessions ok: %d active", len(list.Games))

	if sessionID == "" {
		log.Println("SESSION_ID not set; skipping detail check")
		return
	}

	detail, err := client.SessionDetail(ctx, sessionID)
	if err != nil {
		log.Fatalf("session detail error: %v", err)
	}
	log.Printf("session detail ok: status=%s yourTurn=%v position=%s",
		detail.Game.Status, detail.Game.YourTurn, detail.Game.Position)

	if _, err := client.MoveHistory(ctx, sessionID); err != nil {
		log.Printf("move history error: %v", err)
	} else {
		log.Println("move history ok")
	}

	offers, err := client.ListDrawOffers(ctx, sessionID)
	switch {
	case errors.Is(err, gamesvc.ErrNotFound):
		log.Println("draw offers not deployed on this server (ok)")
	case err != nil:
		log.Printf("draw offers error: %v", err)
	default:
		log.Printf("draw offers ok: %d open", len(offers.Offers))
	}
}
