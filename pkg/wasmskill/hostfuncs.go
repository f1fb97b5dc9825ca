package wasmskill

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/skillrun-dev/skillrun/pkg/capability"
	"github.com/skillrun-dev/skillrun/pkg/logger"
)

const hostModuleName = "skillrun"

// Outbound responses are capped so a module cannot balloon host memory.
const maxFetchBody = 1 << 20

var hostHTTPClient = &http.Client{Timeout: 30 * time.Second}

type grantsKey struct{}

func withGrants(ctx context.Context, g *capability.Grants) context.Context {
	if g == nil {
		return ctx
	}
	return context.WithValue(ctx, grantsKey{}, g)
}

func grantsFromContext(ctx context.Context) *capability.Grants {
	g, _ := ctx.Value(grantsKey{}).(*capability.Grants)
	return g
}

func (i *Instance) callContext(ctx context.Context) context.Context {
	return withGrants(ctx, i.grants)
}

// instantiateHostModule installs the host import surface modules link
// against. The only outbound capability is http_get, and it consults the
// per-instance grants carried on the call context: an undeclared destination
// is denied, there is no implicit wildcard.
func instantiateHostModule(ctx context.Context, rt wazero.Runtime) error {
	_, err := rt.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostHTTPGet),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			[]api.ValueType{api.ValueTypeI64}).
		Export("http_get").
		Instantiate(ctx)
	return err
}

type fetchResponse struct {
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

// hostHTTPGet implements http_get(urlPtr, urlLen) -> packed response JSON.
func hostHTTPGet(ctx context.Context, mod api.Module, stack []uint64) {
	urlPtr, urlLen := uint32(stack[0]), uint32(stack[1])

	raw, ok := mod.Memory().Read(urlPtr, urlLen)
	if !ok {
		stack[0] = respond(ctx, mod, fetchResponse{Error: "url out of range"})
		return
	}
	url := string(raw)

	grants := grantsFromContext(ctx)
	if grants == nil || !grants.AllowsHost(url) {
		logger.G(ctx).WithField("url", url).Warn("module network request denied")
		stack[0] = respond(ctx, mod, fetchResponse{Error: "destination not in declared network allowlist: " + url})
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		stack[0] = respond(ctx, mod, fetchResponse{Error: err.Error()})
		return
	}

	resp, err := hostHTTPClient.Do(req)
	if err != nil {
		stack[0] = respond(ctx, mod, fetchResponse{Error: err.Error()})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		stack[0] = respond(ctx, mod, fetchResponse{Error: err.Error()})
		return
	}

	stack[0] = respond(ctx, mod, fetchResponse{Status: resp.StatusCode, Body: string(body)})
}

// respond marshals the response into guest memory and packs its location.
// A zero return means the guest could not receive the response at all.
func respond(ctx context.Context, mod api.Module, r fetchResponse) uint64 {
	payload, err := json.Marshal(r)
	if err != nil {
		return 0
	}
	ptr, length, err := writeString(ctx, mod, string(payload))
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to write host response into guest memory")
		return 0
	}
	return pack(ptr, length)
}
