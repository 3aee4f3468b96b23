package main

import (
	"flag"
	"fmt"
	"math/rand/v2"

	"tetris_together/internal/config"
	"tetris_together/internal/logger"
	"tetris_together/internal/service"
)

// issue_token prints a participant token for manual testing against the relay.
func main() {
	session := flag.String("session", "dev", "session id the token is scoped to")
	participant := flag.Int64("participant", 0, "participant id (random when 0)")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	id := *participant
	if id <= 0 {
		id = rand.Int64N(1<<53-1) + 1
	}
	token, err := service.GenerateJWT(id, *session)
	if err != nil {
		logger.Fatal("issue_token: sign", "error", err)
	}

	logger.Info("issue_token: token issued", "session", *session, "participant", id)
	fmt.Printf("participant=%d\n", id)
	fmt.Printf("token=%s\n", token)
	fmt.Printf("url=%s?session=%s&token=%s\n", cfg.RelayURL, *session, token)
}
