// Пакет openapi — HTTP-контракт сервиса документов.
//
// openapi.yaml встраивается в бинарник, проверяется kin-openapi при старте
// и отдаётся клиентам по GET /openapi.yaml. ServerInterface и HandlerFromMux
// повторяют раскладку chi-server из oapi-codegen: маршруты и привязка
// path-параметров описаны здесь, бизнес-логика в пакете handlers.
package openapi

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

// Spec возвращает исходный текст OpenAPI-документа.
func Spec() []byte {
	return specYAML
}

// Load разбирает встроенный документ и проверяет его на соответствие
// OpenAPI 3. Ошибка означает повреждённую сборку.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора openapi.yaml: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi.yaml не прошёл проверку: %w", err)
	}
	return doc, nil
}
