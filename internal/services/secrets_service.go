package services

import (
	"net/http"

	"github.com/local-web-services/ldk/internal/secrets"
	"github.com/local-web-services/ldk/internal/wire"
)

// SecretsService exposes the secret store over the JSON target-header
// dialect.
type SecretsService struct {
	engine *secrets.Engine
	table  wire.OperationTable
}

func NewSecretsService(engine *secrets.Engine) *SecretsService {
	s := &SecretsService{engine: engine}
	s.table = wire.OperationTable{
		"CreateSecret":    s.createSecret,
		"PutSecretValue":  s.putSecretValue,
		"GetSecretValue":  s.getSecretValue,
		"DeleteSecret":    s.deleteSecret,
		"ListSecrets":     s.listSecrets,
	}
	return s
}

func (s *SecretsService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

func (s *SecretsService) createSecret(r *http.Request) (interface{}, error) {
	var req struct {
		Name         string `json:"Name"`
		Description  string `json:"Description,omitempty"`
		SecretString string `json:"SecretString"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	v, err := s.engine.CreateSecret(req.Name, req.Description, req.SecretString)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Name": req.Name, "VersionId": v.VersionID}, nil
}

func (s *SecretsService) putSecretValue(r *http.Request) (interface{}, error) {
	var req struct {
		SecretId     string `json:"SecretId"`
		SecretString string `json:"SecretString"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	v, err := s.engine.PutSecretValue(req.SecretId, req.SecretString)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Name": req.SecretId, "VersionId": v.VersionID}, nil
}

func (s *SecretsService) getSecretValue(r *http.Request) (interface{}, error) {
	var req struct {
		SecretId     string `json:"SecretId"`
		VersionId    string `json:"VersionId,omitempty"`
		VersionStage string `json:"VersionStage,omitempty"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	v, err := s.engine.GetSecretValue(req.SecretId, req.VersionId, secrets.Stage(req.VersionStage))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"Name":         req.SecretId,
		"SecretString": v.Value,
		"VersionId":    v.VersionID,
		"CreatedDate":  v.CreatedAt,
	}, nil
}

func (s *SecretsService) deleteSecret(r *http.Request) (interface{}, error) {
	var req struct {
		SecretId string `json:"SecretId"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.DeleteSecret(req.SecretId); err != nil {
		return nil, err
	}
	return map[string]interface{}{"Name": req.SecretId}, nil
}

func (s *SecretsService) listSecrets(r *http.Request) (interface{}, error) {
	list := s.engine.ListSecrets()
	out := make([]map[string]interface{}, len(list))
	for i, sec := range list {
		out[i] = map[string]interface{}{"Name": sec.Name, "Description": sec.Description, "CreatedDate": sec.CreatedAt}
	}
	return map[string]interface{}{"SecretList": out}, nil
}
