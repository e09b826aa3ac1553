package envvars

import (
	"log"
	"os"
)

const (
	GCPProject  = "GCP_PROJECT"
	AuthAPIKey  = "AUTH_API_KEY"
	CachePath   = "CACHE_PATH"
	Environment = "ENVIRONMENT"
	Port        = "PORT"
)

const (
	ProductionEnv = "production"
	DevEnv        = "dev"
)

type Env struct {
	GCPProject  string
	AuthAPIKey  string
	CachePath   string
	Environment string
	Port        string
}

func GetEvn() Env {
	project, ok := os.LookupEnv(GCPProject)
	if !ok {
		log.Fatalf("%s required", GCPProject)
	}
	apiKey := os.Getenv(AuthAPIKey)
	cachePath, ok := os.LookupEnv(CachePath)
	if !ok {
		cachePath = "./lootcrate.db"
	}
	environment, ok := os.LookupEnv(Environment)
	if !ok {
		environment = DevEnv
	}
	port, ok := os.LookupEnv(Port)
	if !ok {
		port = "8080"
	}
	return Env{
		GCPProject:  project,
		AuthAPIKey:  apiKey,
		CachePath:   cachePath,
		Environment: environment,
		Port:        port,
	}
}

func IsProd(e Env) bool {
	return e.Environment == ProductionEnv
}

func IsDev(e Env) bool {
	return e.Environment == DevEnv
}
