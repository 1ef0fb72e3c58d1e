package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"npcs-desk/constants"
	"npcs-desk/dataset"
	"npcs-desk/job"
	"npcs-desk/mw"
	"npcs-desk/neuropacs"
	"npcs-desk/results"
	"npcs-desk/scheduler"
	"npcs-desk/session"
	"npcs-desk/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newLogger() *zap.Logger {
	env := viper.GetString("workspace.env")
	var logger *zap.Logger
	switch env {
	case "DEVELOPMENT":
		logger, _ = zap.NewDevelopment()
	default:
		logger, _ = zap.NewProduction()
	}
	return logger
}

func setDefaults() {
	viper.SetDefault("workspace.env", "PRODUCTION")
	viper.SetDefault("webserver.host", "127.0.0.1")
	viper.SetDefault("webserver.port", "8765")
	viper.SetDefault("webserver.token", "")
	viper.SetDefault("neuropacs.server_url", constants.DefaultServerURL)
	viper.SetDefault("neuropacs.origin_type", constants.OriginType)
	viper.SetDefault("neuropacs.timeout", constants.DefaultRemoteTimeout)
	viper.SetDefault("neuropacs.upload_timeout", constants.DefaultUploadTimeout)
	viper.SetDefault("store.path", "")
	viper.SetDefault("qc.enabled", true)
	viper.SetDefault("qc.interval", constants.DefaultQCInterval)
	viper.SetDefault("qc.timeout", constants.DefaultQCTimeout)
	viper.SetDefault("refresh.interval", constants.DefaultRefreshInterval)
	viper.SetDefault("upload.retention", constants.DefaultUploadRetention)
	viper.SetDefault("export.dir", "")
	viper.SetDefault("minio.enabled", false)
	viper.SetDefault("minio.use_ssl", false)
	viper.SetDefault("minio.bucket_name", "neuropacs-results")
}

func initConfigs(env string) {
	setDefaults()
	viper.AddConfigPath("conf")
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "__")
	viper.SetEnvKeyReplacer(replacer)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("Error reading config file, %s", err)
		}
		log.Printf("No config file for [%s], using defaults", env)
	}
}

func getMapEnvVars() *map[string]string {
	ret := make(map[string]string)
	envsOS := os.Environ()
	for _, envOS := range envsOS {
		items := strings.SplitN(envOS, "=", 2)
		if len(items) > 1 {
			ret[items[0]] = items[1]
		}
	}
	return &ret
}

func storePath() string {
	if p := viper.GetString("store.path"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		utils.LogFatal(err)
	}
	return utils.AppDataPath(runtime.GOOS, home, os.Getenv("APPDATA"))
}

func newSinks(exportDir string, logger *zap.Logger) map[string]results.Sink {
	sinks := map[string]results.Sink{
		constants.SinkFile: results.NewFileSink(exportDir),
	}
	if !viper.GetBool("minio.enabled") {
		return sinks
	}

	utils.LogInfo(viper.GetString("minio.uri"))
	minioClient, err := minio.New(
		viper.GetString("minio.uri"),
		&minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_key_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: viper.GetBool("minio.use_ssl"),
		})
	if err != nil {
		panic("Cannot connect to MinIO")
	}
	sinks[constants.SinkMinIO] = results.NewMinIOStorage(minioClient, viper.GetString("minio.bucket_name"), logger)
	return sinks
}

func main() {

	envVars := getMapEnvVars()
	env := "development"
	if value, found := (*envVars)[constants.ENV]; found {
		env = value
	}
	initConfigs(env)

	logger := newLogger()
	defer logger.Sync()
	utils.SetLogger(logger)
	utils.LogInfo("desk is running in [%s] mode", env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := storePath()
	utils.LogInfo("job store at %s", path)
	store := job.NewJobStore(path, logger)

	exportDir := viper.GetString("export.dir")
	if exportDir == "" {
		exportDir = filepath.Join(filepath.Dir(path), "results")
	}

	client := neuropacs.NewClient(neuropacs.Config{
		ServerURL:     viper.GetString("neuropacs.server_url"),
		OriginType:    viper.GetString("neuropacs.origin_type"),
		Timeout:       viper.GetDuration("neuropacs.timeout"),
		UploadTimeout: viper.GetDuration("neuropacs.upload_timeout"),
	}, logger)

	loop := scheduler.NewLoop(logger)
	manager := job.NewManager(client, dataset.NewScanner(logger), store, loop, job.NewNotices(logger), job.Config{
		QCEnabled:       viper.GetBool("qc.enabled"),
		QCInterval:      viper.GetDuration("qc.interval"),
		QCTimeout:       viper.GetDuration("qc.timeout"),
		RefreshInterval: viper.GetDuration("refresh.interval"),
		UploadRetention: viper.GetDuration("upload.retention"),
	}, logger)

	// start on the dashboard when the stored key still works
	loop.Post(func() {
		if err := manager.Resume(ctx); err != nil {
			utils.LogError(err)
		}
	})

	route := gin.Default()
	route.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"POST", "PUT", "GET", "DELETE"},
		AllowHeaders:     []string{"Access-Control-Allow-Headers", "Origin", "Accept", "X-Requested-With", "Content-Type", "X-Api-Key"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))
	route.Use(mw.WrapClientInfo(viper.GetString("webserver.token"), logger))

	sessionAPI := session.NewSessionAPI(manager, loop, logger)
	sessionAPI.InitRoute(route, "session")

	jobAPI := job.NewJobAPI(manager, loop, newSinks(exportDir, logger), logger)
	jobAPI.InitRoute(route, "jobs")
	jobAPI.InitUploadRoute(route, "uploads")
	jobAPI.InitSettingsRoute(route, "settings")
	jobAPI.InitNoticeRoute(route, "notices")

	addr := viper.GetString("webserver.host") + ":" + viper.GetString("webserver.port")
	server := &http.Server{Addr: addr, Handler: route}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.LogFatal(err)
		}
	}()
	utils.LogInfo("dashboard listening on http://%s", addr)

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		utils.LogError(err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	utils.LogError(server.Shutdown(shutdownCtx))
}
