package importapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// importAPISchema defines the configuration schema.
var importAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the import-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "import-api",
		Factory:     NewComponent,
		Schema:      importAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "plateful",
		Description: "HTTP endpoints for enqueueing recipe imports and polling their status",
		Version:     "0.1.0",
	})
}
