package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

var allowedModelKeys = map[string]bool{
	"collection":        true,
	"fields":            true,
	"strict":            true,
	"discriminator_key": true,
	"discriminators":    true,
	"service":           true,
}

var allowedDiscriminatorKeys = map[string]bool{
	"fields": true,
	"strict": true,
}

var allowedFieldKeys = map[string]bool{
	"type":     true,
	"of":       true,
	"required": true,
	"unique":   true,
	"default":  true,
	"enum":     true,
	"ref":      true,
	"match":    true,
	"min":      true,
	"max":      true,
}

var allowedServiceKeys = map[string]bool{
	"id":              true,
	"whitelist":       true,
	"paginate":        true,
	"lean":            true,
	"overwrite":       true,
	"estimated_count": true,
	"route":           true,
}

var allowedPaginateKeys = map[string]bool{
	"default": true,
	"max":     true,
}

var allowedFieldTypeValues = map[string]bool{
	TypeString: true,
	TypeNumber: true,
	TypeInt:    true,
	TypeBool:   true,
	TypeDate:   true,
	TypeID:     true,
	TypeObject: true,
	TypeArray:  true,
	TypeMixed:  true,
}

func validateYAMLNode(node *yaml.Node, context string) error {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := validateYAMLNode(child, "model"); err != nil {
				return err
			}
		}

	case yaml.MappingNode:
		var allowedKeys map[string]bool
		switch context {
		case "model":
			allowedKeys = allowedModelKeys
		case "discriminator":
			allowedKeys = allowedDiscriminatorKeys
		case "field":
			allowedKeys = allowedFieldKeys
		case "service":
			allowedKeys = allowedServiceKeys
		case "paginate":
			allowedKeys = allowedPaginateKeys
		default:
			allowedKeys = nil // free form
		}

		for i := 0; i < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valNode := node.Content[i+1]
			key := keyNode.Value

			if allowedKeys != nil && !allowedKeys[key] {
				return fmt.Errorf("unknown key '%s' in %s", key, context)
			}

			if context == "field" && (key == "type" || key == "of") {
				if !allowedFieldTypeValues[valNode.Value] {
					return fmt.Errorf("unknown type value '%s' in field", valNode.Value)
				}
			}

			nextContext := ""
			switch {
			case (context == "model" || context == "discriminator") && key == "fields":
				nextContext = "fields-map"
			case context == "fields-map":
				nextContext = "field"
			case context == "model" && key == "discriminators":
				nextContext = "discriminators-map"
			case context == "discriminators-map":
				nextContext = "discriminator"
			case context == "model" && key == "service":
				nextContext = "service"
			case context == "service" && key == "paginate":
				nextContext = "paginate"
			case context == "field" && (key == "default" || key == "enum"):
				nextContext = "value"
			default:
				nextContext = context
			}

			if err := validateYAMLNode(valNode, nextContext); err != nil {
				return err
			}
		}

	case yaml.SequenceNode:
		for _, item := range node.Content {
			if err := validateYAMLNode(item, context); err != nil {
				return err
			}
		}

	case yaml.ScalarNode:
		// scalars are checked by their parent mapping
	}

	return nil
}
