package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/excalisketch/sketch-relay/internal/relay"
	"github.com/excalisketch/sketch-relay/internal/store"
	"github.com/excalisketch/sketch-relay/pkg/auth"
)

type Server struct {
	Router    *gin.Engine
	Store     *store.Store
	Redis     *redis.Client
	Hub       *relay.Hub
	Persister *relay.Persister
}

func NewServer() *Server {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println(".env not found, using environment variables")
		}
	}

	st, err := store.Connect()
	if err != nil {
		log.Fatalf("Postgres connect failed: %v", err)
	}

	// Redis backs the token blacklist shared with the HTTP auth API.
	// Without it the relay still runs, it just cannot see logouts.
	var rdb *redis.Client
	if url := os.Getenv("REDIS_URL"); url != "" {
		redisOpts, err := redis.ParseURL(url)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(redisOpts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Redis connect failed: %v", err)
		}
	} else {
		log.Println("REDIS_URL not set, token blacklist disabled")
	}

	jwtMgr := auth.NewJWTManager(
		os.Getenv("JWT_SECRET"),
		24*time.Hour,
	)
	verifier := auth.NewVerifier(jwtMgr, rdb)

	persister := relay.NewPersister(st)
	go persister.Run()

	hub := relay.NewHub(verifier, persister, authTimeout())

	router := gin.Default()
	Routes(router, hub)

	return &Server{
		Router:    router,
		Store:     st,
		Redis:     rdb,
		Hub:       hub,
		Persister: persister,
	}
}

func (s *Server) Run() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Relay starting on port %s", port)
	if err := s.Router.Run(":" + port); err != nil {
		log.Fatalf("Server run error: %v", err)
	}
}

func authTimeout() time.Duration {
	raw := os.Getenv("AUTH_TIMEOUT")
	if raw == "" {
		return relay.DefaultAuthTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("invalid AUTH_TIMEOUT %q: %v", raw, err)
	}
	return d
}
