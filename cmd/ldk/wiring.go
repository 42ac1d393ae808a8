package main

import (
	"github.com/local-web-services/ldk/internal/compute"
	"github.com/local-web-services/ldk/internal/config"
	"github.com/local-web-services/ldk/internal/identity"
	"github.com/local-web-services/ldk/internal/kv"
	"github.com/local-web-services/ldk/internal/object"
	"github.com/local-web-services/ldk/internal/parameters"
	"github.com/local-web-services/ldk/internal/pubsub"
	"github.com/local-web-services/ldk/internal/queue"
	"github.com/local-web-services/ldk/internal/secrets"
	"github.com/local-web-services/ldk/internal/workflow"
)

// buildResourceLister reports every service's live resource names and
// dedicated port, backing GET /_ldk/resources.
func buildResourceLister(
	kvEngine *kv.Engine,
	queueEngine *queue.Engine,
	objectEngine *object.Engine,
	pubsubEngine *pubsub.Engine,
	identityEngine *identity.Engine,
	workflowEngine *workflow.Engine,
	computeEngine *compute.Engine,
	secretsEngine *secrets.Engine,
	parametersEngine *parameters.Engine,
	cfg *config.Config,
) func() map[string]interface{} {
	return func() map[string]interface{} {
		functions := computeEngine.ListFunctions()
		functionNames := make([]string, len(functions))
		for i, f := range functions {
			functionNames[i] = f.Name
		}
		secretList := secretsEngine.ListSecrets()
		secretNames := make([]string, len(secretList))
		for i, s := range secretList {
			secretNames[i] = s.Name
		}
		paramList := parametersEngine.DescribeParameters()
		paramNames := make([]string, len(paramList))
		for i, p := range paramList {
			paramNames[i] = p.Name
		}

		return map[string]interface{}{
			"kv": map[string]interface{}{
				"port":   cfg.ServicePort(config.OffsetKV),
				"tables": kvEngine.ListTables(),
			},
			"queue": map[string]interface{}{
				"port":   cfg.ServicePort(config.OffsetQueue),
				"queues": queueEngine.ListQueues(),
			},
			"object": map[string]interface{}{
				"port":    cfg.ServicePort(config.OffsetObject),
				"buckets": objectEngine.ListBuckets(),
			},
			"pubsub": map[string]interface{}{
				"port": cfg.ServicePort(config.OffsetPubSub),
			},
			"identity": map[string]interface{}{
				"port": cfg.ServicePort(config.OffsetIdentity),
			},
			"workflow": map[string]interface{}{
				"port": cfg.ServicePort(config.OffsetWorkflow),
			},
			"function-management": map[string]interface{}{
				"port":      cfg.ServicePort(config.OffsetFuncMgmt),
				"functions": functionNames,
			},
			"rest-api-gateway": map[string]interface{}{
				"port": cfg.ServicePort(config.OffsetRESTAPI),
			},
			"secrets": map[string]interface{}{
				"port":    cfg.ServicePort(config.OffsetSecret),
				"secrets": secretNames,
			},
			"parameters": map[string]interface{}{
				"port":       cfg.ServicePort(config.OffsetParam),
				"parameters": paramNames,
			},
			"iam-stub": map[string]interface{}{
				"port": cfg.ServicePort(config.OffsetIAM),
			},
			"sts-stub": map[string]interface{}{
				"port": cfg.ServicePort(config.OffsetSTS),
			},
		}
	}
}

// buildResetters maps each service name to a function clearing its
// ephemeral state, backing POST /_ldk/reset. kv and object persist to disk
// and report reset failures; the rest are in-memory and cannot fail.
func buildResetters(
	kvEngine *kv.Engine,
	queueEngine *queue.Engine,
	objectEngine *object.Engine,
	pubsubEngine *pubsub.Engine,
	identityEngine *identity.Engine,
	workflowEngine *workflow.Engine,
	computeEngine *compute.Engine,
	secretsEngine *secrets.Engine,
	parametersEngine *parameters.Engine,
) map[string]func() error {
	return map[string]func() error{
		"kv":     kvEngine.Reset,
		"object": objectEngine.Reset,
		"queue": func() error {
			queueEngine.Reset()
			return nil
		},
		"pubsub": func() error {
			pubsubEngine.Reset()
			return nil
		},
		"identity": func() error {
			identityEngine.Reset()
			return nil
		},
		"workflow": func() error {
			workflowEngine.Reset()
			return nil
		},
		"compute": func() error {
			computeEngine.Reset()
			return nil
		},
		"secrets": func() error {
			secretsEngine.Reset()
			return nil
		},
		"parameters": func() error {
			parametersEngine.Reset()
			return nil
		},
	}
}
