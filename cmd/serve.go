package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gaetancollaud/integrations-mqtt/pkg/api"
	"github.com/gaetancollaud/integrations-mqtt/pkg/config"
	"github.com/gaetancollaud/integrations-mqtt/pkg/controller"
	"github.com/gaetancollaud/integrations-mqtt/pkg/debug"
	"github.com/gaetancollaud/integrations-mqtt/pkg/health"
	"github.com/gaetancollaud/integrations-mqtt/pkg/mqtt"
	"github.com/gaetancollaud/integrations-mqtt/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the integrations and the API (default)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd.ErrOrStderr())

	config, err := config.ReadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("error found when reading the config: %w", err)
	}
	setLogLevel(config.LogLevel)

	log.Info().Str("version", rootCmd.Version).Msg("Starting integrations MQTT!")
	log.Debug().Msg(config.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, config.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	mqttOptions := mqtt.NewClientOptions().
		SetMqttUrl(config.Mqtt.MqttUrl).
		SetUsername(config.Mqtt.Username).
		SetPassword(config.Mqtt.Password).
		SetTopicPrefix(config.Mqtt.TopicPrefix).
		SetRetain(config.Mqtt.Retain)
	mqttClient := mqtt.NewClient(mqttOptions)

	// Initialize controller responsible for all the bridge logic.
	controller := controller.NewController(config, mqttClient, store.NewEntryRepository(db))

	// Add profiling server for live profile of the program.
	debugServerExitDone := &sync.WaitGroup{}
	debugServerExitDone.Add(1)
	debugServer := debug.NewServer(config.Servers.DebugPort, controller)
	debugServer.Start(debugServerExitDone)

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("error on starting the controller: %w", err)
	}

	apiServer := api.NewServer(controller, config.Servers.ApiPort)
	if err := apiServer.Start(); err != nil {
		return err
	}
	healthServer, err := health.NewHealth(config.Servers.HealthPort, rootCmd.Version, mqttClient, db)
	if err != nil {
		return err
	}
	if err := healthServer.Start(); err != nil {
		return err
	}
	debugServer.SetReady(true)

	// Subscribe for interruption happening during execution.
	exitSignal := make(chan os.Signal, 2)
	signal.Notify(exitSignal, os.Interrupt, syscall.SIGTERM)
	<-exitSignal

	log.Info().Msg("Shutting down servers...")
	if err := apiServer.Stop(); err != nil {
		log.Error().Err(err).Msg("Error when stopping the API server")
	}
	if err := healthServer.Stop(); err != nil {
		log.Error().Err(err).Msg("Error when stopping the health server")
	}

	// Gracefully stop all the entries and their loops.
	log.Info().Msg("Shutting down controller...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := controller.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Error when stopping the controller")
	}

	log.Info().Msg("Shutting down debug server...")
	if err := debugServer.Stop(stopCtx); err != nil {
		return fmt.Errorf("error shutting down debug server: %w", err)
	}

	debugServerExitDone.Wait()
	log.Info().Msg("Done exiting.")
	return nil
}
