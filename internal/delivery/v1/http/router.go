package http

import (
	"net/http"
	"strconv"

	_ "github.com/DRSN-tech/photo-search/docs" // Импорт сгенерированных файлов
	"github.com/DRSN-tech/photo-search/internal/metrics"
	"github.com/DRSN-tech/photo-search/internal/usecase"
	"github.com/DRSN-tech/photo-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

func (r *Router) Init(prUC usecase.ProductUC, maxFileSize int64) {
	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.Recoverer)
	r.router.Use(instrument)

	prHandler := NewProductHandler(prUC, r.logger, maxFileSize)

	r.router.Handle("/metrics", promhttp.Handler())
	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.router.Get("/static/{productID}/{filename}", prHandler.serveImage)

	r.router.Route("/api/v1", func(v1 chi.Router) {
		registerProductRoutes(v1, prHandler)
		v1.Post("/search", prHandler.search)
		v1.Post("/index/rebuild", prHandler.rebuild)
	})
}

func registerProductRoutes(router chi.Router, prHandler *ProductHandler) {
	router.Route("/products", func(pr chi.Router) {
		pr.Get("/", prHandler.listProducts)
		pr.Post("/", prHandler.createProduct)

		pr.Route("/{productID}", func(p chi.Router) {
			p.Get("/", prHandler.getProduct)
			p.Delete("/", prHandler.removeProduct)
			p.Post("/images", prHandler.addImages)
			p.Delete("/images/{filename}", prHandler.removeImage)
		})
	})
}

// instrument считает запросы по шаблону маршрута, а не по пути, чтобы не плодить метки.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	})
}
