package arcgis

import (
	"log/slog"
	"strings"

	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

// Methods served on the main channel. The bare names without the
// "arcgis#" prefix are accepted too.
const (
	MethodSetAPIKey     = "arcgis#setApiKey"
	MethodGetAPIKey     = "arcgis#getApiKey"
	MethodSetLicense    = "arcgis#setLicense"
	MethodGetAPIVersion = "arcgis#getApiVersion"
)

const methodNamespace = "arcgis#"

// dispatcher routes main channel calls to the SDK environment.
type dispatcher struct {
	env    *sdk.Environment
	logger *slog.Logger
}

func newDispatcher(env *sdk.Environment, logger *slog.Logger) *dispatcher {
	return &dispatcher{env: env, logger: logger}
}

func (d *dispatcher) handle(call platform.MethodCall, result platform.Result) {
	switch strings.TrimPrefix(call.Method, methodNamespace) {
	case "setApiKey":
		key, ok := call.Arguments.(string)
		if !ok && call.Arguments != nil {
			result.Error(platform.CodeInvalidArgs, "setApiKey expects a string", nil)
			return
		}
		d.env.SetAPIKey(key)
		result.Success(nil)

	case "getApiKey":
		result.Success(d.env.APIKey())

	case "setLicense":
		// A non-string key is checked as empty and reported as invalid.
		key, _ := call.Arguments.(string)
		status := d.env.SetLicense(key).Status
		d.logger.Debug("license set", "method", call.Method, "status", status.String())
		result.Success(int(status))

	case "getApiVersion":
		result.Success(d.env.APIVersion())

	default:
		d.logger.Debug("method not implemented", "method", call.Method)
		result.NotImplemented()
	}
}
