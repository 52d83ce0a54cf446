package openapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface — обработчики всех операций openapi.yaml.
type ServerInterface interface {
	// Загрузка документа
	// (POST /upload)
	UploadDocument(w http.ResponseWriter, r *http.Request)
	// Просмотр документа
	// (GET /view/{reference})
	ViewDocument(w http.ResponseWriter, r *http.Request, reference Reference)
	// Скачивание документа
	// (GET /download/{reference})
	DownloadDocument(w http.ResponseWriter, r *http.Request, reference Reference)
	// Публичные метаданные документа
	// (GET /api/v1/files/{reference})
	GetDocumentInfo(w http.ResponseWriter, r *http.Request, reference Reference)
	// (GET /api/v1/info)
	GetStorageInfo(w http.ResponseWriter, r *http.Request)
	// (POST /api/v1/maintenance/reconcile)
	Reconcile(w http.ResponseWriter, r *http.Request)
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// (GET /openapi.yaml)
	GetOpenAPISpec(w http.ResponseWriter, r *http.Request)
}

// MiddlewareFunc — middleware отдельной операции.
type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper разбирает параметры запроса и вызывает ServerInterface.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	var handler http.Handler = fn
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

// bindReference извлекает path-параметр reference.
func (siw *ServerInterfaceWrapper) bindReference(w http.ResponseWriter, r *http.Request) (Reference, bool) {
	var reference Reference
	err := runtime.BindStyledParameterWithOptions("simple", "reference", chi.URLParam(r, "reference"), &reference,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "reference", Err: err})
		return "", false
	}
	return reference, true
}

// UploadDocument — обёртка операции uploadDocument.
func (siw *ServerInterfaceWrapper) UploadDocument(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.UploadDocument)
}

// ViewDocument — обёртка операции viewDocument.
func (siw *ServerInterfaceWrapper) ViewDocument(w http.ResponseWriter, r *http.Request) {
	reference, ok := siw.bindReference(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ViewDocument(w, r, reference)
	})
}

// DownloadDocument — обёртка операции downloadDocument.
func (siw *ServerInterfaceWrapper) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	reference, ok := siw.bindReference(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.DownloadDocument(w, r, reference)
	})
}

// GetDocumentInfo — обёртка операции getDocumentInfo.
func (siw *ServerInterfaceWrapper) GetDocumentInfo(w http.ResponseWriter, r *http.Request) {
	reference, ok := siw.bindReference(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetDocumentInfo(w, r, reference)
	})
}

func (siw *ServerInterfaceWrapper) GetStorageInfo(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.GetStorageInfo)
}

func (siw *ServerInterfaceWrapper) Reconcile(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.Reconcile)
}

func (siw *ServerInterfaceWrapper) HealthLive(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.HealthLive)
}

func (siw *ServerInterfaceWrapper) HealthReady(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.HealthReady)
}

func (siw *ServerInterfaceWrapper) GetMetrics(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.GetMetrics)
}

func (siw *ServerInterfaceWrapper) GetOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.GetOpenAPISpec)
}

// InvalidParamFormatError — path-параметр не удалось привязать.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("некорректный формат параметра %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ChiServerOptions — параметры монтирования маршрутов.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler создаёт http.Handler со всеми маршрутами на новом chi-роутере.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerFromMux монтирует маршруты на существующий chi-роутер.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{BaseRouter: r})
}

// HandlerWithOptions монтирует маршруты с указанными параметрами.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/upload", wrapper.UploadDocument)
		r.Get(options.BaseURL+"/view/{reference}", wrapper.ViewDocument)
		r.Get(options.BaseURL+"/download/{reference}", wrapper.DownloadDocument)
		r.Get(options.BaseURL+"/api/v1/files/{reference}", wrapper.GetDocumentInfo)
		r.Get(options.BaseURL+"/api/v1/info", wrapper.GetStorageInfo)
		r.Post(options.BaseURL+"/api/v1/maintenance/reconcile", wrapper.Reconcile)
		r.Get(options.BaseURL+"/health/live", wrapper.HealthLive)
		r.Get(options.BaseURL+"/health/ready", wrapper.HealthReady)
		r.Get(options.BaseURL+"/metrics", wrapper.GetMetrics)
		r.Get(options.BaseURL+"/openapi.yaml", wrapper.GetOpenAPISpec)
	})

	return r
}
