package main

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/gavelhouse/gavel/internal/auction/gateway"
	"github.com/gavelhouse/gavel/internal/httpapi"
)

func setupServer(addr string, api *httpapi.Server, gw *gateway.Service) *http.Server {
	mux := http.NewServeMux()

	api.RegisterRoutes(mux)
	gw.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    addr,
		Handler: c.Handler(mux),
	}
}
