package simulate

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/complyon/autonomy/pkg/contracts"
)

// Parameter schemas per action type. Simulation validates an action's
// parameters against its schema before computing the delta; a schema
// failure is the invalid_parameters violation.
var parameterSchemaSources = map[contracts.ActionType]string{
	contracts.ActionCreateVariant: `{
		"type": "object",
		"properties": {
			"industry_id": {"type": "string", "minLength": 1},
			"use_case_id": {"type": "string"}
		},
		"required": ["industry_id"]
	}`,
	contracts.ActionUpdateDeployment: `{
		"type": "object",
		"properties": {
			"reason": {"type": "string", "minLength": 1}
		},
		"required": ["reason"]
	}`,
	contracts.ActionRenewCertification: `{
		"type": "object",
		"properties": {
			"certification_name": {"type": "string", "minLength": 1}
		},
		"required": ["certification_name"]
	}`,
	contracts.ActionFlagRisk: `{
		"type": "object",
		"properties": {
			"risk_level": {"type": "string", "enum": ["low", "medium", "high", "critical"]}
		},
		"required": ["risk_level"]
	}`,
	contracts.ActionProposeOntologyEdge: `{
		"type": "object"
	}`,
	contracts.ActionSubmitMarketplaceListing: `{
		"type": "object"
	}`,
}

func compileParameterSchemas() (map[contracts.ActionType]*jsonschema.Schema, error) {
	out := make(map[contracts.ActionType]*jsonschema.Schema, len(parameterSchemaSources))
	for at, src := range parameterSchemaSources {
		c := jsonschema.NewCompiler()
		name := fmt.Sprintf("%s.json", at)
		if err := c.AddResource(name, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", at, err)
		}
		schema, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", at, err)
		}
		out[at] = schema
	}
	return out, nil
}
