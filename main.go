package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"

	"lootCrate/auth"
	"lootCrate/clients/gcp"
	"lootCrate/envvars"
	"lootCrate/handlers"
	"lootCrate/services/history"
	"lootCrate/services/lifecycle"
	"lootCrate/services/participation"
	"lootCrate/storage"
)

// reconcileInterval paces the background pass that converges optimistic
// local state with the remote store.
const reconcileInterval = 5 * time.Minute

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using system environment")
	}
	env := envvars.GetEvn()

	firestoreClient := gcp.CreateFirestore(ctx, env.GCPProject)
	defer firestoreClient.Close()

	cache, err := storage.NewSQLiteCache(env.CachePath)
	if err != nil {
		log.Fatalf("failed to open local cache: %v", err)
	}
	defer cache.Close()

	remote := storage.NewFirestoreRemote(firestoreClient)
	store := participation.NewStore(remote, cache)
	hist := history.NewLog(remote)
	service := lifecycle.NewService(remote, store, hist)

	var provider auth.Provider
	if env.AuthAPIKey != "" {
		provider = auth.NewRestProvider(resty.New(), env.AuthAPIKey)
	} else {
		slog.Warn("no auth API key configured, trusting token claims")
		provider = auth.ClaimsProvider{}
	}

	store.StartReconciler(ctx, reconcileInterval)

	if envvars.IsProd(env) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.Default())
	r.Use(auth.Middleware(provider))

	server := handlers.NewServer(service)
	server.RegisterRoutes(r)

	s := &http.Server{
		Handler: r,
		Addr:    "0.0.0.0:" + env.Port,
	}

	slog.Info("Starting HTTP server", "port", env.Port)
	log.Fatal(s.ListenAndServe())
}
