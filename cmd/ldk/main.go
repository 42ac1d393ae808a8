// Command ldk boots one local emulator process: every engine, the event
// propagation fabric wiring them together, and one HTTP provider per
// service on its declared port, supervised by the provider orchestrator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/local-web-services/ldk/internal/compute"
	"github.com/local-web-services/ldk/internal/config"
	"github.com/local-web-services/ldk/internal/fabric"
	"github.com/local-web-services/ldk/internal/identity"
	"github.com/local-web-services/ldk/internal/kv"
	"github.com/local-web-services/ldk/internal/logging"
	"github.com/local-web-services/ldk/internal/management"
	"github.com/local-web-services/ldk/internal/middleware"
	"github.com/local-web-services/ldk/internal/object"
	"github.com/local-web-services/ldk/internal/orchestrator"
	"github.com/local-web-services/ldk/internal/parameters"
	"github.com/local-web-services/ldk/internal/pubsub"
	"github.com/local-web-services/ldk/internal/queue"
	"github.com/local-web-services/ldk/internal/secrets"
	"github.com/local-web-services/ldk/internal/services"
	"github.com/local-web-services/ldk/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ldk: "+err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New("ldk", cfg.LogLevel, cfg.LogFormat)
	ring := logging.NewRingBuffer(cfg.RingBufferCap)
	chaosLog := zerolog.New(os.Stdout).With().Str("component", "chaos").Logger()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Every engine is built up front; fabric is built on the compute engine
	// (its function invoker) and injected as the sink/dispatcher each other
	// engine notifies, then told how to send to and poll queues below.
	computeEngine := compute.NewEngine()
	fab := fabric.New(computeEngine, log.WithContext(context.Background()), time.Duration(cfg.StreamBatchWindowMs)*time.Millisecond)

	kvEngine := kv.NewEngine(joinDir(cfg.DataDir, "kv"), time.Duration(cfg.ConsistencyWindowMs)*time.Millisecond, fab)
	queueEngine := queue.NewEngine(log.WithContext(context.Background()))
	objectEngine := object.NewEngine(joinDir(cfg.DataDir, "object"), fab)
	pubsubEngine := pubsub.NewEngine(fab, log.WithContext(context.Background()))
	identityEngine := identity.NewEngine(nil)
	workflowEngine := workflow.NewEngine(computeEngine)
	secretsEngine := secrets.NewEngine()
	parametersEngine := parameters.NewEngine()

	fab.SetQueueSend(func(queueName, body string, attrs map[string]string) error {
		_, failures, err := queueEngine.SendBatch(queueName, []queue.SendBatchEntry{{ID: "fabric", Body: body, Attributes: attrs}})
		if err != nil {
			return err
		}
		if len(failures) > 0 {
			return fmt.Errorf("queue send failed: %s", failures[0].Message)
		}
		return nil
	})
	fab.SetQueuePoller(queueEngine)

	registry := orchestrator.New(log)

	apiGateway := management.NewGateway(computeEngine)

	iamMode := middleware.IAMMode(cfg.IAM.Mode)
	chaosCfg := middleware.ChaosConfig{
		LatencyProbability: cfg.Chaos.LatencyProb,
		LatencyMin:         time.Duration(cfg.Chaos.LatencyMinMs) * time.Millisecond,
		LatencyMax:         time.Duration(cfg.Chaos.LatencyMaxMs) * time.Millisecond,
		ErrorProbability:   cfg.Chaos.ErrorProb,
		DropProbability:    cfg.Chaos.DropProb,
		TimeoutProbability: cfg.Chaos.TimeoutProb,
	}
	if !cfg.Chaos.Enabled {
		chaosCfg = middleware.ChaosConfig{}
	}

	managementSurface := management.New(
		registry, ring, computeEngine, identityEngine,
		buildResourceLister(kvEngine, queueEngine, objectEngine, pubsubEngine, identityEngine, workflowEngine, computeEngine, secretsEngine, parametersEngine, cfg),
		buildResetters(kvEngine, queueEngine, objectEngine, pubsubEngine, identityEngine, workflowEngine, computeEngine, secretsEngine, parametersEngine),
		nil,
	)

	register := func(id string, port int, svc http.Handler, vhost []string) {
		svcCfg := middleware.ServiceConfig{
			Name:       id,
			Log:        log.Named(id),
			Ring:       ring,
			IAMMode:    iamMode,
			Principals: identityEngine,
			Chaos:      chaosCfg,
			ChaosLog:   chaosLog,
			VHostBases: vhost,
		}
		handler := middleware.Chain(svcCfg, svc)
		registry.Register(orchestrator.NewHTTPProvider(id, addr(cfg.Host, cfg.ServicePort(port)), handler))
	}

	register("kv", config.OffsetKV, services.NewKVService(kvEngine), nil)
	register("queue", config.OffsetQueue, services.NewQueueService(queueEngine), nil)
	register("object", config.OffsetObject, services.NewObjectService(objectEngine), []string{cfg.Host})
	register("pubsub", config.OffsetPubSub, services.NewPubSubService(pubsubEngine), nil)
	register("identity", config.OffsetIdentity, services.NewIdentityService(identityEngine), nil)
	register("workflow", config.OffsetWorkflow, services.NewWorkflowService(workflowEngine), nil)
	register("function-management", config.OffsetFuncMgmt, services.NewComputeService(computeEngine), nil)
	register("rest-api-gateway", config.OffsetRESTAPI, apiGateway, nil)
	register("secrets", config.OffsetSecret, services.NewSecretsService(secretsEngine), nil)
	register("parameters", config.OffsetParam, services.NewParametersService(parametersEngine), nil)
	register("iam-stub", config.OffsetIAM, services.NewIAMService(identityEngine), nil)
	register("sts-stub", config.OffsetSTS, services.NewSTSService(), nil)
	register("management", config.OffsetGateway, managementSurface, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer fab.Shutdown()

	queueSweepInterval := 500 * time.Millisecond
	go queueEngine.Run(ctx, queueSweepInterval)
	go fab.Run(ctx)
	pubsubEngine.Start()
	defer pubsubEngine.Stop()
	defer queueEngine.Shutdown()

	order := []string{
		"kv", "queue", "object", "pubsub", "identity", "workflow",
		"function-management", "rest-api-gateway", "secrets", "parameters",
		"iam-stub", "sts-stub", "management",
	}
	if err := registry.Start(ctx, order, nil); err != nil {
		return fmt.Errorf("start providers: %w", err)
	}
	log.WithContext(ctx).Info("ldk is up")

	registry.WaitForShutdown(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return registry.Stop(stopCtx)
}

func joinDir(base, name string) string { return base + string(os.PathSeparator) + name }

func addr(host string, port int) string { return fmt.Sprintf("%s:%d", host, port) }
