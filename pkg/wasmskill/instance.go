package wasmskill

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero/api"

	"github.com/skillrun-dev/skillrun/pkg/capability"
	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// Instance is one live module instantiation. It wraps the contract exports
// and scopes every call's context to the instance's capability grants so the
// host functions can enforce them.
type Instance struct {
	mod    api.Module
	grants *capability.Grants
}

// Close tears the instance down. After Close the module is no longer running.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

// ValidateExports checks the required contract exports. validate_config is
// optional and not checked here.
func (i *Instance) ValidateExports() error {
	for _, name := range []string{exportMetadata, exportTools, exportExecuteTool, exportAllocate} {
		if i.mod.ExportedFunction(name) == nil {
			return &skill.ParseError{Heading: name, Message: "module is missing a required export"}
		}
	}
	return nil
}

// HasValidateConfig reports whether the optional validate_config export exists.
func (i *Instance) HasValidateConfig() bool {
	return i.mod.ExportedFunction(exportValidateConfig) != nil
}

// Metadata calls the metadata-only export and returns its JSON payload.
func (i *Instance) Metadata(ctx context.Context) (string, error) {
	return i.callNullary(ctx, exportMetadata)
}

// Tools calls the tool-list export and returns its JSON payload.
func (i *Instance) Tools(ctx context.Context) (string, error) {
	return i.callNullary(ctx, exportTools)
}

// ExecuteTool invokes the tool-execution entry point with the bound arguments
// already serialized as JSON, returning the module's JSON result verbatim.
func (i *Instance) ExecuteTool(ctx context.Context, toolName, argsJSON string) (string, error) {
	ctx = i.callContext(ctx)

	fn := i.mod.ExportedFunction(exportExecuteTool)
	if fn == nil {
		return "", &skill.ParseError{Heading: exportExecuteTool, Message: "module is missing a required export"}
	}

	namePtr, nameLen, err := writeString(ctx, i.mod, toolName)
	if err != nil {
		return "", err
	}
	argsPtr, argsLen, err := writeString(ctx, i.mod, argsJSON)
	if err != nil {
		return "", err
	}

	res, err := fn.Call(ctx, uint64(namePtr), uint64(nameLen), uint64(argsPtr), uint64(argsLen))
	if err != nil {
		return "", errors.Wrap(err, "execute_tool trapped")
	}
	return readPacked(i.mod, res[0])
}

// ValidateConfig invokes the optional configuration-validation export.
func (i *Instance) ValidateConfig(ctx context.Context, configJSON string) (string, error) {
	ctx = i.callContext(ctx)

	fn := i.mod.ExportedFunction(exportValidateConfig)
	if fn == nil {
		return "", errors.New("module does not export validate_config")
	}

	ptr, length, err := writeString(ctx, i.mod, configJSON)
	if err != nil {
		return "", err
	}

	res, err := fn.Call(ctx, uint64(ptr), uint64(length))
	if err != nil {
		return "", errors.Wrap(err, "validate_config trapped")
	}
	return readPacked(i.mod, res[0])
}

func (i *Instance) callNullary(ctx context.Context, name string) (string, error) {
	ctx = i.callContext(ctx)

	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return "", &skill.ParseError{Heading: name, Message: "module is missing a required export"}
	}
	res, err := fn.Call(ctx)
	if err != nil {
		return "", errors.Wrapf(err, "%s trapped", name)
	}
	return readPacked(i.mod, res[0])
}
