package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"DocrestAPI/internal/config"
	"DocrestAPI/internal/countcache"
	"DocrestAPI/internal/handler"
	"DocrestAPI/internal/logger"
	"DocrestAPI/internal/model"
	"DocrestAPI/internal/query"
	"DocrestAPI/internal/service"
)

// APIPrefix общий префикс REST-маршрутов.
const APIPrefix = "/api/"

// route связывает HTTP-метод с операцией ресурса.
type route struct {
	method string
	item   bool
	handle func(*handler.Resource) http.HandlerFunc
}

// resourceRoutes: стандартный набор маршрутов ресурса.
//
//	GET    /api/{plural}       find
//	POST   /api/{plural}       create
//	PATCH  /api/{plural}       patch всех совпадений по query
//	DELETE /api/{plural}       remove всех совпадений по query
//	GET    /api/{plural}/{id}  get
//	PUT    /api/{plural}/{id}  update
//	PATCH  /api/{plural}/{id}  patch
//	DELETE /api/{plural}/{id}  remove
var resourceRoutes = []route{
	{http.MethodGet, false, func(r *handler.Resource) http.HandlerFunc { return r.Find }},
	{http.MethodPost, false, func(r *handler.Resource) http.HandlerFunc { return r.Create }},
	{http.MethodPatch, false, func(r *handler.Resource) http.HandlerFunc { return r.PatchMany }},
	{http.MethodDelete, false, func(r *handler.Resource) http.HandlerFunc { return r.RemoveMany }},
	{http.MethodGet, true, func(r *handler.Resource) http.HandlerFunc { return r.Get }},
	{http.MethodPut, true, func(r *handler.Resource) http.HandlerFunc { return r.Update }},
	{http.MethodPatch, true, func(r *handler.Resource) http.HandlerFunc { return r.Patch }},
	{http.MethodDelete, true, func(r *handler.Resource) http.HandlerFunc { return r.Remove }},
}

// resourceMethods возвращает методы из resourceRoutes без повторов, в порядке таблицы.
func resourceMethods() []string {
	seen := map[string]bool{}
	var out []string
	for _, rt := range resourceRoutes {
		if !seen[rt.method] {
			seen[rt.method] = true
			out = append(out, rt.method)
		}
	}
	return out
}

// Restful вешает на mux маршруты resourceRoutes. Пустой plural = name + "s".
func Restful(mux *http.ServeMux, name, plural string, svc *service.Service) {
	if plural == "" {
		plural = name + "s"
	}
	res := handler.NewResource(name, svc)
	collection := APIPrefix + plural
	for _, rt := range resourceRoutes {
		path := collection
		if rt.item {
			path += "/{id}"
		}
		mux.HandleFunc(rt.method+" "+path, withLogging(rt.handle(res)))
	}

	logger.Debug("route_registered", map[string]any{"resource": name, "path": collection})
}

// InitRoutes регистрирует ресурс для каждой базовой модели реестра.
// Дискриминаторы обслуживаются сервисом базовой модели.
func InitRoutes(mux *http.ServeMux, cfg *config.Config, registry *model.Registry, cache countcache.Cache) error {
	for _, m := range registry.Models() {
		if m.Base() != nil {
			continue
		}
		if m.Service.Paginate == nil && cfg.Paginate.Default > 0 {
			m.Service.Paginate = &query.Paginate{Default: cfg.Paginate.Default, Max: cfg.Paginate.Max}
		}
		svc, err := service.FromModel(m, cache)
		if err != nil {
			return fmt.Errorf("service for %s: %w", m.Name, err)
		}
		Restful(mux, strings.ToLower(m.Name), m.Service.Route, svc)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return nil
}

// Handler оборачивает mux в CORS с методами зарегистрированных маршрутов.
func Handler(cfg *config.Config, mux *http.ServeMux) http.Handler {
	return withCORS(cfg.CORS.AllowOrigin, cfg.CORS.AllowCredentials, mux.ServeHTTP)
}

// Serve запускает сервер и останавливает его по отмене ctx.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("server_shutdown", map[string]any{"addr": addr})
		return srv.Shutdown(context.Background())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		level := "info"
		if sw.status >= 500 {
			level = "error"
		} else if sw.status >= 400 {
			level = "warn"
		}
		fields := map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": sw.status,
		}
		switch level {
		case "error":
			logger.Error("response", fields)
		case "warn":
			logger.Warn("response", fields)
		default:
			logger.Info("response", fields)
		}
	}
}
