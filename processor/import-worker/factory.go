package importworker

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// importWorkerSchema defines the configuration schema.
var importWorkerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the import-worker component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "import-worker",
		Factory:     NewComponent,
		Schema:      importWorkerSchema,
		Type:        "processor",
		Protocol:    "jetstream",
		Domain:      "plateful",
		Description: "Recipe import supervisor: consumes jobs, runs extraction, persists outcomes",
		Version:     "0.1.0",
	})
}
