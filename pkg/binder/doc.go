// Package binder decodes HTTP requests into typed structs.
//
// Each binder handles one source: BindJSON reads the body, BindQuery reads
// fields tagged `query:"..."` and BindPath reads fields tagged `path:"..."`
// through a router-specific extractor such as chi.URLParam. Binders are
// combined by handler.Wrap and applied in order, so a struct may mix sources:
//
//	type MarkReadRequest struct {
//		UserID string   `path:"userId" json:"-"`
//		IDs    []string `json:"ids"`
//	}
//
// Conversion failures of query and path values are reported as *FieldError,
// which names the offending parameter. Body failures wrap ErrInvalidJSON,
// ErrBodyTooLarge or ErrUnsupportedMediaType.
package binder
