package api

import (
	"net/http"
	"strings"

	"ecg_go/pkg/logger"
)

// Router gerencia as rotas da API
type Router struct {
	handler     *Handler
	mux         *http.ServeMux
	basePath    string
	middlewares []Middleware
}

// NewRouter cria um novo router para a API. store pode ser nil.
func NewRouter(mon Monitor, store EventStore, basePath string) *Router {
	// Normalizar base path
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")

	return &Router{
		handler:  NewHandler(mon, store),
		mux:      http.NewServeMux(),
		basePath: basePath,
		middlewares: []Middleware{
			LoggingMiddleware,
			MetricsMiddleware,
			RecoveryMiddleware,
			CorsMiddleware,
		},
	}
}

// Setup configura todas as rotas
func (r *Router) Setup() {
	r.mux.HandleFunc(r.path("/status"), r.handler.GetStatus)
	r.mux.HandleFunc(r.path("/current"), r.handler.GetCurrentData)
	r.mux.HandleFunc(r.path("/peaks"), r.handler.GetPeaks)
	r.mux.HandleFunc(r.path("/bpm-history"), r.handler.GetBPMHistory)
	r.mux.HandleFunc(r.path("/samples"), r.handler.GetSamples)
	r.mux.HandleFunc(r.path("/run/start"), r.handler.StartRun)
	r.mux.HandleFunc(r.path("/run/stop"), r.handler.StopRun)

	logger.Infof("API configurada com base path: %s", r.basePath)
}

// Handler retorna o handler HTTP final com todos os middlewares aplicados
func (r *Router) Handler() http.Handler {
	return r.applyMiddleware(r.mux)
}

// AddMiddleware adiciona um novo middleware
func (r *Router) AddMiddleware(middleware Middleware) {
	r.middlewares = append(r.middlewares, middleware)
}

// path retorna o caminho completo para uma rota
func (r *Router) path(route string) string {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return r.basePath + route
}

// applyMiddleware aplica todos os middlewares ao handler
func (r *Router) applyMiddleware(handler http.Handler) http.Handler {
	if len(r.middlewares) == 0 {
		return handler
	}
	return Chain(r.middlewares...)(handler)
}
