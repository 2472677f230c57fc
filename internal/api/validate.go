// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"embed"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"

	"github.com/fleetguard/patrolcore/internal/log"
)

//go:embed openapi.yaml
var embeddedSpec embed.FS

// requestValidator checks every inbound request against the embedded OpenAPI
// contract before it reaches a handler, so a caller that drifts from the
// documented surface fails fast with a 400 rather than an ad-hoc handler
// error deep inside Store/Supervisor.
type requestValidator struct {
	router routers.Router
}

// newRequestValidator loads the contract this binary ships from the
// embedded filesystem. name is kept as a parameter (rather than hardcoding
// "openapi.yaml") so a future second contract version can live alongside it.
func newRequestValidator(name string) (*requestValidator, error) {
	data, err := embeddedSpec.ReadFile(name)
	if err != nil {
		return nil, err
	}
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, err
	}
	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, err
	}
	return &requestValidator{router: router}, nil
}

func (v *requestValidator) middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := v.router.FindRoute(r)
			if err != nil {
				// A request to a path/method the contract doesn't describe
				// is not ours to validate; let it fall through to chi's own
				// 404/405 handling.
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				log.WithComponent("api").Debug().Err(err).Str("path", r.URL.Path).Msg("request failed contract validation")
				writeError(w, http.StatusBadRequest, "contract_violation", err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
