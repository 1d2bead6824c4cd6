package binder

import "net/http"

// BindQuery fills fields tagged `query:"name"` from the URL query string.
// Slices accept repeated parameters and comma-separated lists; pointer
// fields stay nil when the parameter is absent.
//
//	type ListRequest struct {
//		Limit   *int   `query:"limit"`
//		Channel string `query:"channel"`
//	}
func BindQuery() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		q := r.URL.Query()
		return bindValues(v, "query", ErrInvalidQuery, func(name string) []string {
			return q[name]
		})
	}
}

// BindPath fills fields tagged `path:"name"` using extractor, usually
// chi.URLParam.
func BindPath(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindValues(v, "path", ErrInvalidPath, func(name string) []string {
			if s := extractor(r, name); s != "" {
				return []string{s}
			}
			return nil
		})
	}
}
