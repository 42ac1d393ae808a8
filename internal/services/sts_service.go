package services

import (
	"fmt"
	"net/http"

	"github.com/local-web-services/ldk/internal/wire"
)

// STSService is the port +11 STS stub spec.md §6 names: GetCallerIdentity
// echoes the request's bound principal (the same X-Ldk-Principal header the
// IAM evaluator reads), and AssumeRole fabricates a session credential set
// scoped to the requested role so downstream SDK calls have something to
// sign with. Neither operation is backed by any real credential store —
// this is a stub, not a credential broker.
type STSService struct {
	table wire.OperationTable
}

func NewSTSService() *STSService {
	s := &STSService{}
	s.table = wire.OperationTable{
		"GetCallerIdentity": s.getCallerIdentity,
		"AssumeRole":        s.assumeRole,
	}
	return s
}

func (s *STSService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

func (s *STSService) getCallerIdentity(r *http.Request) (interface{}, error) {
	arn := callerARN(r, "arn:aws:iam::000000000000:user/anonymous")
	return map[string]interface{}{
		"Account": "000000000000",
		"UserId":  userNameFromARN(arn),
		"Arn":     arn,
	}, nil
}

func (s *STSService) assumeRole(r *http.Request) (interface{}, error) {
	var req struct {
		RoleArn         string `json:"RoleArn"`
		RoleSessionName string `json:"RoleSessionName"`
	}
	if err := wire.DecodeRequest(r, &req); err != nil {
		return nil, err
	}
	assumedID := fmt.Sprintf("%s:%s", req.RoleArn, req.RoleSessionName)
	return map[string]interface{}{
		"Credentials": map[string]interface{}{
			"AccessKeyId":     "LDKSTUBACCESSKEY",
			"SecretAccessKey": "ldk-stub-secret-access-key",
			"SessionToken":    "ldk-stub-session-token",
		},
		"AssumedRoleUser": map[string]interface{}{
			"Arn":           req.RoleArn,
			"AssumedRoleId": assumedID,
		},
	}, nil
}
