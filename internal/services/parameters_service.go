package services

import (
	"net/http"

	"github.com/local-web-services/ldk/internal/parameters"
	"github.com/local-web-services/ldk/internal/wire"
)

// ParametersService exposes the hierarchical parameter store over the JSON
// target-header dialect.
type ParametersService struct {
	engine *parameters.Engine
	table  wire.OperationTable
}

func NewParametersService(engine *parameters.Engine) *ParametersService {
	s := &ParametersService{engine: engine}
	s.table = wire.OperationTable{
		"PutParameter":          s.putParameter,
		"GetParameter":          s.getParameter,
		"GetParameters":         s.getParameters,
		"GetParametersByPath":   s.getParametersByPath,
		"DeleteParameter":       s.deleteParameter,
		"DescribeParameters":    s.describeParameters,
	}
	return s
}

func (s *ParametersService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wire.Dispatch(w, r, s.table)
}

func (s *ParametersService) putParameter(r *http.Request) (interface{}, error) {
	var req struct {
		Name        string `json:"Name"`
		Type        string `json:"Type"`
		Value       string `json:"Value"`
		Description string `json:"Description,omitempty"`
		Overwrite   bool   `json:"Overwrite,omitempty"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	typ := parameters.ParamType(req.Type)
	if typ == "" {
		typ = parameters.TypeString
	}
	version, err := s.engine.PutParameter(req.Name, typ, req.Value, req.Description, req.Overwrite)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Version": version}, nil
}

func (s *ParametersService) getParameter(r *http.Request) (interface{}, error) {
	var req struct {
		Name string `json:"Name"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	p, err := s.engine.GetParameter(req.Name)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"Parameter": parameterView(p)}, nil
}

func (s *ParametersService) getParameters(r *http.Request) (interface{}, error) {
	var req struct {
		Names []string `json:"Names"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	list := s.engine.GetParameters(req.Names)
	views := make([]map[string]interface{}, len(list))
	for i, p := range list {
		views[i] = parameterView(p)
	}
	return map[string]interface{}{"Parameters": views}, nil
}

func (s *ParametersService) getParametersByPath(r *http.Request) (interface{}, error) {
	var req struct {
		Path      string `json:"Path"`
		Recursive bool   `json:"Recursive,omitempty"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	list := s.engine.GetParametersByPath(req.Path, req.Recursive)
	views := make([]map[string]interface{}, len(list))
	for i, p := range list {
		views[i] = parameterView(p)
	}
	return map[string]interface{}{"Parameters": views}, nil
}

func (s *ParametersService) deleteParameter(r *http.Request) (interface{}, error) {
	var req struct {
		Name string `json:"Name"`
	}
	if err := wire.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := s.engine.DeleteParameter(req.Name); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}

func (s *ParametersService) describeParameters(r *http.Request) (interface{}, error) {
	list := s.engine.DescribeParameters()
	views := make([]map[string]interface{}, len(list))
	for i, p := range list {
		views[i] = map[string]interface{}{
			"Name":        p.Name,
			"Type":        p.Type,
			"Version":     p.Version,
			"Description": p.Description,
		}
	}
	return map[string]interface{}{"Parameters": views}, nil
}

func parameterView(p *parameters.Parameter) map[string]interface{} {
	return map[string]interface{}{
		"Name":    p.Name,
		"Type":    p.Type,
		"Value":   p.Value,
		"Version": p.Version,
	}
}
